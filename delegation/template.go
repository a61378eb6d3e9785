// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package delegation

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// templateFile is the on-disk shape of an agent-template document: a list
// of specialists under a single top-level key, decoded straight into
// typed structs.
type templateFile struct {
	Agents []SpecialistConfig `yaml:"agents"`
}

// Registry holds the specialist templates available for delegation,
// keyed by name.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]SpecialistConfig
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]SpecialistConfig)}
}

// LoadFile parses a YAML agent-template document and merges its entries
// into the registry, later files overriding earlier ones by name.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("delegation: reading template %q: %w", path, err)
	}
	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("delegation: parsing template %q: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, spec := range tf.Agents {
		if spec.Name == "" {
			return fmt.Errorf("delegation: template %q: agent entry missing name", path)
		}
		r.specs[spec.Name] = spec
	}
	return nil
}

// Register adds or replaces a single specialist template directly,
// bypassing YAML loading (used by tests and programmatic wiring).
func (r *Registry) Register(spec SpecialistConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
}

// Lookup returns the named specialist template, if registered.
func (r *Registry) Lookup(name string) (SpecialistConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Names returns the registered specialist names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	return names
}
