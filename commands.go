package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"i4.energy/across/scpictl/instrument"
	"i4.energy/across/scpictl/scpi"
)

func init() {
	queryCmd.Flags().String("shape", "scalar", "Response shape: scalar, list or block")
	queryCmd.Flags().String("kind", "", "Element kind: numeric, boolean, string, character, expression or block")
	waitCmd.Flags().Duration("for", 0, "How long to wait (default: the session timeout)")

	rootCmd.AddCommand(idnCmd, sendCmd, queryCmd, statusCmd, errorsCmd, waitCmd, resetCmd, clearCmd, selfTestCmd)
}

var idnCmd = &cobra.Command{
	Use:   "idn",
	Short: "Identify the instrument (*IDN?)",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, conn *connection, args []string) error {
		id, err := conn.Identity(conn.ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Manufacturer: %s\n", id.Manufacturer)
		fmt.Fprintf(out, "Model:        %s\n", id.Model)
		fmt.Fprintf(out, "Serial:       %s\n", id.SerialNumber)
		fmt.Fprintf(out, "Firmware:     %s\n", id.Firmware)
		return nil
	}),
}

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send a program message, e.g. \"VOLT 5.0;CURR 0.1\"",
	Long: `Send a program message and print the response if it holds a query.

The status byte is checked afterwards and errors in the instrument's error
queue are printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withSession(func(cmd *cobra.Command, conn *connection, args []string) error {
		raw, err := conn.Exec(conn.ctx, strings.Join(args, " "))
		if len(raw) > 0 {
			fmt.Fprint(cmd.OutOrStdout(), string(raw))
		}
		return err
	}),
}

var queryCmd = &cobra.Command{
	Use:   "query <query>",
	Short: "Send a query and print the decoded response",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(cmd *cobra.Command, conn *connection, args []string) error {
		q, err := scpi.ParseCommand(args[0])
		if err != nil {
			return err
		}
		shapeFlag, _ := cmd.Flags().GetString("shape")
		kindFlag, _ := cmd.Flags().GetString("kind")
		shape, err := scpi.ParseShape(shapeFlag)
		if err != nil {
			return err
		}
		kind, err := scpi.ParseKind(kindFlag)
		if err != nil {
			return err
		}

		resp, err := conn.SendQuery(conn.ctx, q, shape, kind)
		printResponse(cmd.OutOrStdout(), resp)
		return err
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read the status byte, event status and SCPI status registers",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, conn *connection, args []string) error {
		stb, err := conn.ReadStatusByte(conn.ctx)
		if err != nil {
			return err
		}
		esr, err := conn.EventStatus(conn.ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "STB: %3d  %s\n", stb.Raw(), stb)
		fmt.Fprintf(out, "ESR: %3d  %s\n", esr.Raw(), esr)

		for _, reg := range []instrument.StatusRegister{instrument.OperationStatus, instrument.QuestionableStatus} {
			cond, err := conn.StatusCondition(conn.ctx, reg)
			if err != nil {
				return err
			}
			event, err := conn.StatusEvent(conn.ctx, reg)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-12s condition 0x%04X  event 0x%04X\n", reg, cond, event)
		}
		return nil
	}),
}

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Drain the instrument's error queue",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, conn *connection, args []string) error {
		entries, err := conn.CheckErrors(conn.ctx)
		for _, e := range entries {
			fmt.Fprintln(cmd.OutOrStdout(), e)
		}
		if err == nil && len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), scpi.NoError)
		}
		return err
	}),
}

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait until pending operations are complete",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, conn *connection, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("for")
		started := time.Now()
		if err := conn.WaitOperationComplete(conn.ctx, timeout); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "complete after %s\n", time.Since(started).Round(time.Millisecond))
		return nil
	}),
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the instrument (*RST)",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, conn *connection, args []string) error {
		return conn.Reset(conn.ctx)
	}),
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Device clear, discard pending output and clear status (*CLS)",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, conn *connection, args []string) error {
		return conn.Clear(conn.ctx)
	}),
}

var selfTestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run the instrument self-test (*TST?)",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, conn *connection, args []string) error {
		result, err := conn.SelfTest(conn.ctx)
		if err != nil {
			return err
		}
		if result != 0 {
			return fmt.Errorf("self-test failed with code %d", result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "self-test passed")
		return nil
	}),
}

// withSession opens a session for the duration of run. Instrument errors are
// printed entry by entry.
func withSession(run func(cmd *cobra.Command, conn *connection, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		conn, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		err = run(cmd, conn, args)
		var ie *instrument.InstrumentError
		if errors.As(err, &ie) {
			for _, e := range ie.Entries {
				fmt.Fprintf(cmd.ErrOrStderr(), "instrument: %s\n", e)
			}
		}
		return err
	}
}

func printResponse(w io.Writer, resp scpi.Response) {
	if resp.Raw == nil {
		return
	}
	if resp.Shape == scpi.ShapeBlock {
		fmt.Fprintf(w, "<%d bytes>\n", len(resp.Block()))
		return
	}
	for _, v := range resp.Values {
		fmt.Fprintln(w, v)
	}
}
