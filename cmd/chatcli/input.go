package main

import (
	"carchat/backend/internal/models"
	"errors"
	"strings"
)

type inputKind int

const (
	inputEmpty inputKind = iota
	inputQuit
	inputPublic
	inputWhisper
)

var errWhisperUsage = errors.New("usage: /w <user_id> <text>")

// input is one parsed line typed by the user.
type input struct {
	kind     inputKind
	receiver models.UserID
	content  string
}

// parseLine turns a line of stdin into a command. Whispers need both a receiver
// and some text.
func parseLine(line string) (input, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return input{kind: inputEmpty}, nil
	case line == "/quit":
		return input{kind: inputQuit}, nil
	case line == "/w" || strings.HasPrefix(line, "/w "):
		rest := strings.TrimSpace(strings.TrimPrefix(line, "/w"))
		receiver, content, _ := strings.Cut(rest, " ")
		content = strings.TrimSpace(content)
		if receiver == "" || content == "" {
			return input{}, errWhisperUsage
		}
		return input{kind: inputWhisper, receiver: models.UserID(receiver), content: content}, nil
	default:
		return input{kind: inputPublic, content: line}, nil
	}
}
