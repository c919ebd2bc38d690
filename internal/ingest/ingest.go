// Package ingest implements the line-delimited JSON collaborator contract:
// one JSON object per line, each either a node or an edge record.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	kgerrors "github.com/uforge/kgraph/internal/errors"
	"github.com/uforge/kgraph/internal/recordcodec"
)

// NodeRecord is the line shape {"type":"node", ...}.
type NodeRecord struct {
	Name     string   `json:"name"`
	NodeType string   `json:"nodeType"`
	Metadata []string `json:"metadata"`
}

// EdgeRecord is the line shape {"type":"edge", ...}.
type EdgeRecord struct {
	From     string `json:"from"`
	To       string `json:"to"`
	EdgeType string `json:"edgeType"`
}

// Line is one decoded record: exactly one of Node or Edge is non-nil.
type Line struct {
	LineNumber int
	Node       *NodeRecord
	Edge       *EdgeRecord
}

type envelope struct {
	Type     string   `json:"type"`
	Name     string   `json:"name"`
	NodeType string   `json:"nodeType"`
	Metadata []string `json:"metadata"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	EdgeType string   `json:"edgeType"`
}

// Parse reads line-delimited JSON from r, one record per call to fn. It
// stops and returns the first parse or handler error; line numbers in
// errors are 1-indexed.
func Parse(r io.Reader, fn func(Line) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return kgerrors.New(kgerrors.ErrCodeInvalidValue, fmt.Sprintf("line %d: malformed JSON", lineNo), err)
		}

		line := Line{LineNumber: lineNo}
		switch env.Type {
		case "node":
			line.Node = &NodeRecord{Name: env.Name, NodeType: env.NodeType, Metadata: env.Metadata}
		case "edge":
			line.Edge = &EdgeRecord{From: env.From, To: env.To, EdgeType: env.EdgeType}
		default:
			return kgerrors.New(kgerrors.ErrCodeInvalidValue, fmt.Sprintf("line %d: unknown record type %q", lineNo, env.Type), nil)
		}

		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return kgerrors.New(kgerrors.ErrCodeIO, "reading ingestion stream", err)
	}
	return nil
}

// SplitMetadata separates "Key: Value" metadata entries (properties) from
// bare entries (tags), per the ingestion contract.
func SplitMetadata(metadata []string) (properties map[string]recordcodec.Value, tags []string) {
	properties = make(map[string]recordcodec.Value)
	for _, entry := range metadata {
		if idx := strings.Index(entry, ":"); idx >= 0 {
			key := strings.TrimSpace(entry[:idx])
			value := strings.TrimSpace(entry[idx+1:])
			if key != "" {
				properties[key] = recordcodec.StringValue(value)
				continue
			}
		}
		tags = append(tags, entry)
	}
	return properties, tags
}

// EndpointResolver maps an object's name to its id, used to resolve edge
// endpoints by name during ingestion.
type EndpointResolver interface {
	ResolveByName(name string) (id string, err error)
}
