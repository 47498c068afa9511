// Package api exposes the REST surface of agentd: planning goals into work
// plans, inspecting and updating todos, and delegating payloads to configured
// servers. Prometheus metrics and a health probe are served alongside.
package api
