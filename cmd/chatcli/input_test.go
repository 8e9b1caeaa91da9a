package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want input
	}{
		{name: "blank", line: "   ", want: input{kind: inputEmpty}},
		{name: "quit", line: "/quit", want: input{kind: inputQuit}},
		{name: "public", line: "  hello all ", want: input{kind: inputPublic, content: "hello all"}},
		{name: "whisper", line: "/w 2 hi  there", want: input{kind: inputWhisper, receiver: "2", content: "hi  there"}},
		{name: "whisper extra spaces", line: "/w   7    yo", want: input{kind: inputWhisper, receiver: "7", content: "yo"}},
		{name: "slash text is public", line: "/weird", want: input{kind: inputPublic, content: "/weird"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLine_IncompleteWhisper(t *testing.T) {
	for _, line := range []string{"/w", "/w ", "/w 2", "/w 2   "} {
		t.Run(line, func(t *testing.T) {
			_, err := parseLine(line)
			assert.ErrorIs(t, err, errWhisperUsage)
		})
	}
}
