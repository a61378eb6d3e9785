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

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ravenforge/agentrun/message"
	"github.com/ravenforge/agentrun/metrics"
	"github.com/ravenforge/agentrun/session"
)

type createConversationRequest struct {
	ID string `json:"id,omitempty"`
}

type createConversationResponse struct {
	ConversationID string `json:"conversationId"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	conv, err := s.sessions.Create(req.ID)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createConversationResponse{ConversationID: conv.ID})
}

type attachmentPayload struct {
	Name  string `json:"name"`
	MIME  string `json:"mime"`
	Bytes []byte `json:"bytes"`
}

type sendMessageRequest struct {
	Text        string              `json:"text"`
	Attachments []attachmentPayload `json:"attachments,omitempty"`
}

type sendMessageResponse struct {
	ResponseTimeMs int64            `json:"responseTimeMs"`
	Usage          metrics.Snapshot `json:"usage"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conv, err := s.sessions.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload := message.UserMessagePayload{Text: req.Text}
	for _, a := range req.Attachments {
		payload.Attachments = append(payload.Attachments, message.Attachment{Name: a.Name, MIME: a.MIME, Bytes: a.Bytes})
	}

	start := time.Now()
	if _, err := conv.Send(r.Context(), payload); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	elapsed := time.Since(start)

	var usage metrics.Snapshot
	if conv.Metrics != nil {
		usage = conv.Metrics.Snapshot(id)
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{ResponseTimeMs: elapsed.Milliseconds(), Usage: usage})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
