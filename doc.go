// Package agentrun is an agent orchestration runtime: an outer
// LLM-call/tool-execution loop (package orchestrator), bounded-concurrency
// tool dispatch with human-in-the-loop approval (package tool), task
// delegation to named specialist agents in-process or over A2A (packages
// delegation and a2abridge), and a chi-routed HTTP surface that streams
// each conversation's events as newline-delimited JSON (package server).
//
// # Quick start
//
// Run the server against a config file:
//
//	agentrun serve --config agentrun.yaml
//
// A minimal config:
//
//	llm:
//	  baseURL: https://api.openai.com/v1
//	  model: gpt-4o-mini
//	server:
//	  addr: ":8080"
//
// # Library use
//
// Import the packages directly to embed the runtime rather than run it
// as a server:
//
//	import (
//	    "github.com/ravenforge/agentrun/orchestrator"
//	    "github.com/ravenforge/agentrun/session"
//	    "github.com/ravenforge/agentrun/config"
//	)
package agentrun
