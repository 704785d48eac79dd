package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"espnow-arena/node/logging"
)

// Console writes one human-readable line per event.
type Console struct {
	logger *log.Logger
}

func NewConsole(w io.Writer) *Console {
	return &Console{logger: log.New(w, "", log.LstdFlags|log.Lmicroseconds)}
}

func (s *Console) Write(event logging.Event) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s tick=%d actor=%s", event.Severity, event.Type, event.Tick, formatEntity(event.Actor))
	if len(event.Targets) > 0 {
		parts := make([]string, 0, len(event.Targets))
		for _, target := range event.Targets {
			parts = append(parts, formatEntity(target))
		}
		fmt.Fprintf(&b, " targets=%s", strings.Join(parts, ","))
	}
	if event.Payload != nil {
		if data, err := json.Marshal(event.Payload); err == nil {
			fmt.Fprintf(&b, " payload=%s", data)
		} else {
			fmt.Fprintf(&b, " payload=%v", event.Payload)
		}
	}
	if event.TraceID != "" {
		fmt.Fprintf(&b, " trace=%s", event.TraceID)
	}
	s.logger.Print(b.String())
	return nil
}

func (s *Console) Close(context.Context) error {
	return nil
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		if ref.Kind == "" {
			return "-"
		}
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}
