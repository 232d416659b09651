package content

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind enumerates the standardized content part kinds.
type Kind string

const (
	KindText         Kind = "text"
	KindThought      Kind = "thought"
	KindToolCall     Kind = "tool_call"
	KindToolOutput   Kind = "tool_output"
	KindImage        Kind = "image"
	KindAudio        Kind = "audio"
	KindVideo        Kind = "video"
	KindDocument     Kind = "document"
	KindCacheControl Kind = "cache_control"
)

// ThoughtBlock holds reasoning content emitted by the model. Signature is
// provider-issued and must be echoed back verbatim on resume when present.
type ThoughtBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// ToolCallBlock is a tool invocation requested by the assistant. Arguments is
// a JSON document encoded as a string.
type ToolCallBlock struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolOutputBlock carries the result of executing a tool call back to the
// assistant, modeled within the following user-role message. Exactly one of
// Value and Error is set.
type ToolOutputBlock struct {
	ToolCallId string          `json:"toolCallId"`
	Name       string          `json:"name,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// IsError reports whether the tool output represents a failed execution.
func (b ToolOutputBlock) IsError() bool {
	return b.Error != ""
}

// MediaRef references media content by URL or data: URL.
type MediaRef struct {
	Source    string `json:"source"`
	MediaType string `json:"mediaType,omitempty"`
}

// CacheControlBlock marks a cache boundary for providers that support prompt
// caching.
type CacheControlBlock struct {
	Kind string `json:"kind"`
}

// A Part is one typed segment of a message. It is a tagged union: Type names
// the kind and exactly one payload field is populated. Text content lives
// directly in the Text field.
type Part struct {
	Type         Kind               `json:"type"`
	Text         string             `json:"text,omitempty"`
	Thought      *ThoughtBlock      `json:"thought,omitempty"`
	ToolCall     *ToolCallBlock     `json:"toolCall,omitempty"`
	ToolOutput   *ToolOutputBlock   `json:"toolOutput,omitempty"`
	Image        *MediaRef          `json:"image,omitempty"`
	Audio        *MediaRef          `json:"audio,omitempty"`
	Video        *MediaRef          `json:"video,omitempty"`
	Document     *MediaRef          `json:"document,omitempty"`
	CacheControl *CacheControlBlock `json:"cacheControl,omitempty"`
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Type: KindText, Text: text}
}

// ThoughtPart returns a reasoning part.
func ThoughtPart(text string) Part {
	return Part{Type: KindThought, Thought: &ThoughtBlock{Text: text}}
}

// ToolCallPart returns a tool call part. Arguments must be a JSON document.
func ToolCallPart(id, name, arguments string) Part {
	return Part{Type: KindToolCall, ToolCall: &ToolCallBlock{Id: id, Name: name, Arguments: arguments}}
}

// ToolOutputPart returns a tool output part holding a successful result.
// The value must be JSON-marshalable.
func ToolOutputPart(toolCallId, name string, value any) (Part, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Part{}, fmt.Errorf("marshaling tool output value: %w", err)
	}
	return Part{Type: KindToolOutput, ToolOutput: &ToolOutputBlock{
		ToolCallId: toolCallId,
		Name:       name,
		Value:      raw,
	}}, nil
}

// ToolErrorPart returns a tool output part recording a failed execution.
func ToolErrorPart(toolCallId, name, errMsg string) Part {
	return Part{Type: KindToolOutput, ToolOutput: &ToolOutputBlock{
		ToolCallId: toolCallId,
		Name:       name,
		Error:      errMsg,
	}}
}

// ImagePart returns an image part. When mediaType is empty and the source is
// raw bytes already fetched by the caller, use SniffMediaType first.
func ImagePart(source, mediaType string) Part {
	return Part{Type: KindImage, Image: &MediaRef{Source: source, MediaType: mediaType}}
}

// AudioPart returns an audio part.
func AudioPart(source, mediaType string) Part {
	return Part{Type: KindAudio, Audio: &MediaRef{Source: source, MediaType: mediaType}}
}

// VideoPart returns a video part.
func VideoPart(source, mediaType string) Part {
	return Part{Type: KindVideo, Video: &MediaRef{Source: source, MediaType: mediaType}}
}

// DocumentPart returns a document part.
func DocumentPart(source, mediaType string) Part {
	return Part{Type: KindDocument, Document: &MediaRef{Source: source, MediaType: mediaType}}
}

// CacheControlPart returns a cache control marker part.
func CacheControlPart(kind string) Part {
	return Part{Type: KindCacheControl, CacheControl: &CacheControlBlock{Kind: kind}}
}

// SniffMediaType detects the media type of raw content. Detection is limited
// to content sniffing; no transcoding is performed.
func SniffMediaType(data []byte) string {
	return http.DetectContentType(data)
}

// Validate checks that the part's payload matches its declared kind.
func (p Part) Validate() error {
	switch p.Type {
	case KindText:
		return nil
	case KindThought:
		if p.Thought == nil {
			return fmt.Errorf("thought part missing payload")
		}
	case KindToolCall:
		if p.ToolCall == nil {
			return fmt.Errorf("tool_call part missing payload")
		}
	case KindToolOutput:
		if p.ToolOutput == nil {
			return fmt.Errorf("tool_output part missing payload")
		}
	case KindImage:
		if p.Image == nil {
			return fmt.Errorf("image part missing payload")
		}
	case KindAudio:
		if p.Audio == nil {
			return fmt.Errorf("audio part missing payload")
		}
	case KindVideo:
		if p.Video == nil {
			return fmt.Errorf("video part missing payload")
		}
	case KindDocument:
		if p.Document == nil {
			return fmt.Errorf("document part missing payload")
		}
	case KindCacheControl:
		if p.CacheControl == nil {
			return fmt.Errorf("cache_control part missing payload")
		}
	default:
		return fmt.Errorf("unknown content part kind: %s", p.Type)
	}
	return nil
}
