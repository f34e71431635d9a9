// Package dispatch implements bang-header preprocessing and the
// slash-command dispatcher: the layer between a decoded frame payload
// and a turn. Grounded on original_source's RWKV7.py main() request
// handling — the "!" header parse, the per-command branches, and
// their exact silent-failure and reply-text conventions are carried
// over in meaning, restructured as explicit Go types instead of the
// original's inline closures over mutable locals.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/stevenaleach/ssmsrv/internal/modelrt"
	"github.com/stevenaleach/ssmsrv/internal/sampling"
	"github.com/stevenaleach/ssmsrv/internal/snapshot"
	"github.com/stevenaleach/ssmsrv/internal/turn"
)

// BangHeader is the parsed form of a leading "!" line: up to three
// whitespace-separated arguments naming a snapshot to load before the
// body, a profile to load before the body, and a snapshot to save
// after the body runs. A missing argument is the zero value and is a
// no-op for that slot.
type BangHeader struct {
	LoadState   string
	LoadProfile string
	PostSave    string
}

// ParseBangHeader splits payload into a BangHeader and the remaining
// body when payload starts with "!". If payload does not start with
// "!", ok is false and body is payload unchanged.
func ParseBangHeader(payload string) (header BangHeader, body string, ok bool) {
	if !strings.HasPrefix(payload, "!") {
		return BangHeader{}, payload, false
	}
	head, rest, _ := strings.Cut(payload, "\n")
	args := strings.Fields(strings.TrimPrefix(head, "!"))
	if len(args) >= 1 {
		header.LoadState = args[0]
	}
	if len(args) >= 2 {
		header.LoadProfile = args[1]
	}
	if len(args) >= 3 {
		header.PostSave = args[2]
	}
	return header, rest, true
}

// splitCommand splits a line on the first run of whitespace, matching
// Python's str.split(maxsplit=1): head is the first token, arg is
// whatever follows with leading/trailing whitespace trimmed.
func splitCommand(line string) (head, arg string) {
	line = strings.TrimSpace(line)
	idx := strings.IndexFunc(line, unicode.IsSpace)
	if idx == -1 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx:])
}

// Session holds the mutable, process-owned state a Dispatcher acts
// on: the model runtime, the current sampling profile, the in-memory
// recurrent-state snapshot carried between turns, and the paths bare
// /save, /load, /save_set and /load_set default to.
type Session struct {
	Model               modelrt.Model
	Variant             sampling.Variant
	Profile             sampling.Profile
	State               *snapshot.State
	DefaultSnapshotPath string
	DefaultProfilePath  string
	MaxChars            int
	Log                 *slog.Logger
}

// Dispatch processes one decoded frame payload end to end: bang
// header, then command or prompt, returning the reply to frame back
// to the client. Dispatch never returns an error; every failure is
// rendered into the reply text or silently swallowed per spec.
func Dispatch(ctx context.Context, s *Session, payload string) string {
	header, body, hadHeader := ParseBangHeader(payload)

	var postSave string
	if hadHeader {
		if header.LoadState != "" {
			if st, err := snapshot.Load(header.LoadState); err == nil {
				s.State = &st
			}
		}
		if header.LoadProfile != "" {
			if p, err := sampling.Load(header.LoadProfile, s.Profile); err == nil {
				s.Profile = p
			}
		}
		postSave = header.PostSave
	}

	if body == "" {
		maybePostSave(s, postSave)
		return ""
	}

	head, arg := splitCommand(body)

	if !strings.HasPrefix(head, "/") {
		reply, err := runTurn(ctx, s, body)
		if err != nil {
			reply = fmt.Sprintf("[error] %v\n", err)
		}
		maybePostSave(s, postSave)
		return reply
	}

	switch strings.ToLower(head) {
	case "/save":
		return saveSnapshot(s, orDefault(arg, s.DefaultSnapshotPath))
	case "/load":
		return loadSnapshot(s, orDefault(arg, s.DefaultSnapshotPath))
	case "/save_set":
		return saveProfile(s, orDefault(arg, s.DefaultProfilePath))
	case "/load_set":
		return loadProfile(s, orDefault(arg, s.DefaultProfilePath))
	case "/t":
		return getOrSet(s, sampling.FieldTemperature, arg)
	case "/p":
		return getOrSet(s, sampling.FieldTopP, arg)
	case "/k":
		return getOrSet(s, sampling.FieldTopK, arg)
	case "/min_p":
		return getOrSet(s, sampling.FieldMinP, arg)
	case "/pen_freq":
		return getOrSet(s, sampling.FieldPenFreq, arg)
	case "/pen_pres":
		return getOrSet(s, sampling.FieldPenPres, arg)
	case "/pen_rep":
		return getOrSet(s, sampling.FieldPenRep, arg)
	case "/max":
		return maxCommand(s, arg)
	case "/?":
		return helpText(s)
	default:
		return ""
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func runTurn(ctx context.Context, s *Session, prompt string) (string, error) {
	res, err := turn.TakeTurn(ctx, s.Model, prompt, s.State, s.Profile, s.MaxChars, s.Log)
	if err != nil {
		return "", err
	}
	st := res.Snapshot
	s.State = &st
	return res.Reply, nil
}

func maybePostSave(s *Session, path string) {
	if path == "" {
		return
	}
	if s.State == nil {
		blob, n, err := s.Model.SaveState()
		if err != nil {
			return
		}
		s.State = &snapshot.State{Blob: blob, TokenCount: n}
	}
	_, _ = snapshot.Save(*s.State, path)
}

func saveSnapshot(s *Session, path string) string {
	if s.State == nil {
		blob, n, err := s.Model.SaveState()
		if err != nil {
			return fmt.Sprintf("[save error] %v\n", err)
		}
		s.State = &snapshot.State{Blob: blob, TokenCount: n}
	}
	n, err := snapshot.Save(*s.State, path)
	if err != nil {
		return fmt.Sprintf("[save error] %v\n", err)
	}
	return fmt.Sprintf("[saved -> %s (%d bytes)]\n", path, n)
}

func loadSnapshot(s *Session, path string) string {
	st, err := snapshot.Load(path)
	if err != nil {
		return fmt.Sprintf("[load error] %v\n", err)
	}
	s.State = &st
	return fmt.Sprintf("[loaded <- %s]\n", path)
}

func saveProfile(s *Session, path string) string {
	n, err := sampling.Save(s.Profile, path)
	if err != nil {
		return fmt.Sprintf("[save_set error] %v\n", err)
	}
	return fmt.Sprintf("[saved set -> %s (%d bytes)]\n", path, n)
}

func loadProfile(s *Session, path string) string {
	p, err := sampling.Load(path, s.Profile)
	if err != nil {
		return fmt.Sprintf("[load_set error] %v\n", err)
	}
	s.Profile = p
	return fmt.Sprintf("[loaded set <- %s]\n", path)
}

// getOrSet implements the uniform get/set shape shared by /t /p /k
// /min_p /pen_freq /pen_pres /pen_rep: no argument prints "<field> =
// <value>", an argument sets it (silently ignoring unparsable text)
// and replies with the empty string.
func getOrSet(s *Session, field, arg string) string {
	if arg == "" {
		v, _ := s.Profile.Get(field)
		return fmt.Sprintf("%s = %s", field, v)
	}
	s.Profile.Set(field, arg)
	return ""
}

func maxCommand(s *Session, arg string) string {
	if arg == "" {
		return fmt.Sprintf("max = %d", s.MaxChars)
	}
	if n, err := strconv.Atoi(arg); err == nil && n > 0 {
		s.MaxChars = n
	}
	return ""
}

func helpText(s *Session) string {
	banner := "RWKV"
	if s.Variant == sampling.VariantMamba {
		banner = "MAMBA"
	}
	return banner + " TCP Runner — commands & tuning\n\n" +
		"USAGE\n" +
		"  - Send plain text to generate a reply.\n" +
		"  - Slash-prefixed lines are commands (not seen by the model).\n\n" +
		"PREFIX (optional, first line)\n\n" +
		"  !load_snapshot load_profile save_snapshot\n\n" +
		"    Loads the named snapshot to process the body against.\n" +
		"    A second argument loads a sampling profile first.\n" +
		"    A third argument names a post-turn snapshot to save to.\n\n" +
		"COMMANDS\n" +
		"  /save [path]        Save recurrent state to file (default: " + s.DefaultSnapshotPath + ")\n" +
		"  /load [path]        Load recurrent state from file (default: " + s.DefaultSnapshotPath + ")\n" +
		"  /save_set [path]    Save current sampling profile to JSON (default: " + s.DefaultProfilePath + ")\n" +
		"  /load_set [path]    Load a sampling profile from JSON (default: " + s.DefaultProfilePath + ")\n\n" +
		"  /t [float]          Set/print temperature. Omit value to print current.\n" +
		"  /p [float]          Set/print top_p. Omit value to print current.\n" +
		"  /k [int]            Set/print top_k. Omit value to print current.\n" +
		"  /min_p [float]      Set/print min_p (state-space variants only).\n" +
		"  /pen_freq [float]   Set/print frequency_penalty (0 disables).\n" +
		"  /pen_pres [float]   Set/print presence_penalty  (0 disables).\n" +
		"  /pen_rep  [float]   Set/print repeat_penalty    (1.0 disables).\n" +
		"  /max [int]          Set/print the character budget per reply.\n\n" +
		"  /?                  Show this help plus current settings.\n\n" +
		"CURRENT SETTINGS\n" +
		s.Profile.HelpLines() +
		fmt.Sprintf("max        = %d\n", s.MaxChars)
}
