// Command ssmtool is the companion transcript tool: GET, PUT, RUN and
// QUOTE operate against a shared transcript file and a running ssmd
// instance. Every operation is silent on failure and always exits 0,
// per spec — this tool is meant to be driven by another program (the
// composer) that polls the transcript file itself rather than
// parsing this tool's exit status. Grounded on original_source's
// tools.py, reworked from its module-level globals into an explicit
// toolConfig value threaded through each command.
package main

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/stevenaleach/ssmsrv/internal/frame"
	"github.com/stevenaleach/ssmsrv/internal/transcript"
)

const (
	defaultHost           = "127.0.0.1"
	defaultPort           = 6502
	defaultTranscriptPath = ".transcript.txt"
	defaultCounterPath    = ".counter"
	dialTimeout           = 3 * time.Second
)

type toolConfig struct {
	host           string
	port           int
	transcriptPath string
	counter        transcript.Counter
	verbose        bool
}

func main() {
	argv := os.Args[1:]
	if len(argv) == 0 {
		os.Exit(0)
	}

	cfg := toolConfig{
		host:           defaultHost,
		port:           defaultPort,
		transcriptPath: defaultTranscriptPath,
	}
	cfg.counter = transcript.Counter{Path: defaultCounterPath, TranscriptPath: cfg.transcriptPath}

	var args []string
	for _, a := range argv {
		if a == "-v" || a == "--verbose" {
			cfg.verbose = true
		} else {
			args = append(args, a)
		}
	}
	if len(args) == 0 {
		os.Exit(0)
	}

	cmd, rest := strings.ToUpper(args[0]), args[1:]
	switch cmd {
	case "GET":
		cfg.cmdGet(rest)
	case "PUT":
		cfg.cmdPut(rest)
	case "RUN":
		cfg.cmdRun(rest)
	case "QUOTE":
		cfg.cmdQuote(rest)
	default:
		os.Exit(0)
	}
}

func silentExit() {
	os.Exit(0)
}

func (c toolConfig) diagnostic(format string, args ...any) {
	if !c.verbose {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

// echoRoundtrip sends text as one framed request to the running
// service and returns its one framed reply, or "" on any transport
// failure.
func (c toolConfig) echoRoundtrip(text string) string {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return ""
	}
	defer conn.Close()

	if err := frame.Write(conn, []byte(text)); err != nil {
		return ""
	}
	reply, err := frame.NewReader(conn).Read()
	if err != nil {
		return ""
	}
	return string(reply)
}

func (c toolConfig) loadTurns() []transcript.Turn {
	txt := transcript.ReadText(c.transcriptPath)
	if txt == "" {
		silentExit()
	}
	turns := transcript.ParseTurns(txt)
	if len(turns) == 0 {
		silentExit()
	}
	return turns
}

func (c toolConfig) mintAndSend(body string) {
	reply := c.echoRoundtrip(body)
	c.diagnostic("ssmtool: reply: %s\n", reply)
	if c.verbose {
		fmt.Fprint(os.Stdout, reply)
	}
	if err := transcript.Append(c.transcriptPath, body+reply); err != nil {
		silentExit()
	}
}

func (c toolConfig) cmdGet(rest []string) {
	if len(rest) != 1 && len(rest) != 2 {
		silentExit()
	}
	turns := c.loadTurns()

	var (
		outPath string
		chosen  transcript.Turn
		ok      bool
	)
	if len(rest) == 1 {
		outPath = rest[0]
		chosen, ok = transcript.FindLastRole(turns, "FILE")
	} else {
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			silentExit()
		}
		outPath = rest[1]
		t, found := transcript.FindByID(turns, n)
		if found && t.Role == "FILE" {
			chosen, ok = t, true
		}
	}
	if !ok {
		silentExit()
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		silentExit()
	}
	if err := os.WriteFile(outPath, []byte(chosen.Content), 0o644); err != nil {
		silentExit()
	}
}

func (c toolConfig) cmdPut(rest []string) {
	if len(rest) != 1 {
		silentExit()
	}
	data, err := os.ReadFile(rest[0])
	if err != nil {
		silentExit()
	}
	content := string(data)
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	n, err := c.counter.Next()
	if err != nil {
		silentExit()
	}
	body := fmt.Sprintf("(Turn %d) [FILE]: %s\n~~~(", n, content)
	c.mintAndSend(body)
}

func (c toolConfig) cmdRun(rest []string) {
	if len(rest) != 0 && len(rest) != 1 {
		silentExit()
	}
	turns := c.loadTurns()

	var (
		chosen transcript.Turn
		ok     bool
	)
	if len(rest) == 0 {
		chosen, ok = transcript.FindLastRole(turns, "PYTHON", "BASH")
	} else {
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			silentExit()
		}
		t, found := transcript.FindByID(turns, n)
		if found && (t.Role == "PYTHON" || t.Role == "BASH") {
			chosen, ok = t, true
		}
	}
	if !ok {
		silentExit()
	}

	out, err := runScript(chosen.Role, chosen.Content)
	if err != nil {
		silentExit()
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}

	n, err := c.counter.Next()
	if err != nil {
		silentExit()
	}
	body := fmt.Sprintf("(Turn %d) [OUTPUT]: %s\n~~~(", n, out)
	c.mintAndSend(body)
}

// runScript writes content to a temp file matching role's language
// and runs it, returning combined stdout+stderr.
func runScript(role, content string) (string, error) {
	var suffix, interpreter string
	var extraArgs []string
	switch role {
	case "BASH":
		suffix, interpreter = ".sh", "/bin/bash"
	case "PYTHON":
		suffix, interpreter, extraArgs = ".py", "python3", []string{"-u"}
	default:
		return "", fmt.Errorf("ssmtool: unsupported script role %q", role)
	}

	tf, err := os.CreateTemp("", "ssmtool-*"+suffix)
	if err != nil {
		return "", err
	}
	path := tf.Name()
	defer os.Remove(path)
	if _, err := tf.WriteString(content); err != nil {
		tf.Close()
		return "", err
	}
	if err := tf.Close(); err != nil {
		return "", err
	}

	args := append(append([]string{}, extraArgs...), path)
	cmd := exec.Command(interpreter, args...)
	out, _ := cmd.CombinedOutput()
	return string(out), nil
}

func (c toolConfig) cmdQuote(rest []string) {
	if len(rest) != 1 {
		silentExit()
	}
	qn, err := strconv.Atoi(rest[0])
	if err != nil {
		silentExit()
	}
	turns := c.loadTurns()
	t, ok := transcript.FindByID(turns, qn)
	if !ok {
		silentExit()
	}
	quoted := transcript.QuoteBlock(t)

	n, err := c.counter.Next()
	if err != nil {
		silentExit()
	}
	body := fmt.Sprintf("(Turn %d) [QUOTE]: %s\n\n~~~(", n, quoted)
	c.mintAndSend(body)
}
