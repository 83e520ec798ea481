package handler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/harun/toolhub/pkg/coretools"
	"github.com/harun/toolhub/pkg/tool"
)

const systemInfoScript = `#!/bin/bash
set -e

hostname=$(hostname 2>/dev/null || cat /etc/hostname 2>/dev/null || echo unknown)
uptime_info=$(uptime 2>/dev/null || echo unknown)
disk_usage=$(df -h / 2>/dev/null | tail -1 || echo unknown)
memory_info=$( (free -h 2>/dev/null | grep Mem) || echo unknown)

printf '{\n'
printf '  "hostname": "%s",\n' "$hostname"
printf '  "uptime": "%s",\n' "$uptime_info"
printf '  "disk_usage": "%s",\n' "$disk_usage"
printf '  "memory_info": "%s",\n' "$memory_info"
printf '  "timestamp": "%s"\n' "$(date -Iseconds)"
printf '}\n'
`

// SystemInfo returns the built-in script handler reporting host details.
func SystemInfo() *tool.Handler {
	return &tool.Handler{
		Name:           "system_info",
		Kind:           tool.KindScript,
		DisplayName:    "System Info Tool",
		Description:    "Returns basic system information using bash commands",
		Version:        tool.DefaultVersion,
		Author:         "System",
		Script:         systemInfoScript,
		TimeoutSeconds: 10,
		InputSchemaTemplate: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		BuiltIn:   true,
		Active:    true,
		SortOrder: 100,
	}
}

// BuiltInHandlers returns every handler shipped with toolhub.
func BuiltInHandlers() []*tool.Handler {
	return append(coretools.Handlers(), SystemInfo())
}

// InstallResult counts records written by InstallBuiltIns
type InstallResult struct {
	Handlers int `json:"handlers"`
	Tools    int `json:"tools"`
}

// InstallBuiltIns saves built-in handlers and tools that are not yet in
// the store. Existing records, including ones an operator disabled or
// edited, are left untouched.
func InstallBuiltIns(ctx context.Context, store Store) (InstallResult, error) {
	var res InstallResult

	handlers, err := store.ListHandlers(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list handlers: %w", err)
	}
	haveHandler := make(map[string]bool, len(handlers))
	for _, h := range handlers {
		haveHandler[h.Name] = true
	}

	for _, h := range BuiltInHandlers() {
		if haveHandler[h.Name] {
			continue
		}
		if err := store.SaveHandler(ctx, h); err != nil {
			return res, fmt.Errorf("failed to install handler %s: %w", h.Name, err)
		}
		res.Handlers++
		log.Info().Str("handler", h.Name).Msg("Built-in handler installed")
	}

	tools, err := store.ListTools(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list tools: %w", err)
	}
	haveTool := make(map[string]bool, len(tools))
	for _, t := range tools {
		haveTool[t.Name] = true
	}

	for _, t := range coretools.Tools() {
		if haveTool[t.Name] {
			continue
		}
		if err := store.SaveTool(ctx, t); err != nil {
			return res, fmt.Errorf("failed to install tool %s: %w", t.Name, err)
		}
		res.Tools++
		log.Info().Str("tool", t.Name).Msg("Built-in tool installed")
	}

	return res, nil
}
