package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"i4.energy/across/scpictl/instrument"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive SCPI shell",
	Long: `Read program messages line by line and print the instrument's responses.

Lines starting with '.' are shell commands:
  .status   read the status byte
  .errors   drain the error queue
  .clear    recover after a timeout
  .wait     wait for operation complete
  .quit     leave the shell (Ctrl+D works too)`,
	Args: cobra.NoArgs,
	RunE: withSession(runShell),
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, conn *connection, args []string) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return runScript(conn, os.Stdin, cmd.OutOrStdout())
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	screen := struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}
	t := term.NewTerminal(screen, "scpi> ")

	fmt.Fprintf(t, "Connected via %s. Type .quit to exit.\r\n", conn.info)
	for {
		line, err := t.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if done := execLine(conn, t, line); done {
			return nil
		}
	}
}

// runScript executes piped input, one program message per line.
func runScript(conn *connection, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if done := execLine(conn, w, scanner.Text()); done {
			return nil
		}
	}
	return scanner.Err()
}

// execLine runs one shell line and reports whether the shell should exit.
func execLine(conn *connection, w io.Writer, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	var err error
	switch line {
	case ".quit", ".exit":
		return true
	case ".status":
		stb, serr := conn.ReadStatusByte(conn.ctx)
		if serr == nil {
			fmt.Fprintf(w, "%3d  %s\r\n", stb.Raw(), stb)
		}
		err = serr
	case ".errors":
		entries, cerr := conn.CheckErrors(conn.ctx)
		for _, e := range entries {
			fmt.Fprintf(w, "%s\r\n", e)
		}
		err = cerr
	case ".clear":
		err = conn.Clear(conn.ctx)
	case ".wait":
		err = conn.WaitOperationComplete(conn.ctx, 0)
	default:
		var raw []byte
		raw, err = conn.Exec(conn.ctx, line)
		if len(raw) > 0 {
			fmt.Fprintf(w, "%s\r\n", strings.TrimRight(string(raw), "\r\n"))
		}
	}

	var ie *instrument.InstrumentError
	switch {
	case errors.As(err, &ie):
		for _, e := range ie.Entries {
			fmt.Fprintf(w, "! %s\r\n", e)
		}
	case errors.Is(err, instrument.ErrOperationTimeout):
		fmt.Fprintf(w, "! %v (use .clear)\r\n", err)
	case err != nil:
		fmt.Fprintf(w, "! %v\r\n", err)
	}
	return conn.ctx.Err() != nil
}
