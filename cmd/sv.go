package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"calypsocore/apdu"
	"calypsocore/command"
	"calypsocore/output"
	"calypsocore/profile"
)

var svAmount int

var svCmd = &cobra.Command{
	Use:   "sv",
	Short: "Stored-value purse operations",
}

var svGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Open a session and read the purse balance",
	RunE:  runSvGet,
}

var svReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the purse by --amount",
	RunE:  runSvReload,
}

var svDebitCmd = &cobra.Command{
	Use:   "debit",
	Short: "Debit the purse by --amount",
	RunE:  runSvDebit,
}

func init() {
	svReloadCmd.Flags().IntVar(&svAmount, "amount", 0, "Amount to reload")
	svDebitCmd.Flags().IntVar(&svAmount, "amount", 0, "Amount to debit")
	svCmd.AddCommand(svGetCmd, svReloadCmd, svDebitCmd)
}

func runSvGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig(cmd)
	if err != nil {
		return err
	}
	t, p, err := connectAndSelect(cfg)
	if err != nil {
		return err
	}
	defer t.Close()

	security, err := cfg.Security.Apply(nil)
	if err != nil {
		return err
	}
	m := buildManager(t, p, security)
	m.PrepareOpenSecureSession(profile.Debit)
	m.PrepareSvGet(command.SVOpReload)
	m.PrepareCloseSecureSession()
	if err := m.ProcessCommands(apdu.CloseAfter); err != nil {
		return fmt.Errorf("sv get: %w", err)
	}
	if !outputJSON {
		output.PrintSVState(p.SV)
		output.PrintAuditTrail(m.AuditTrail())
	}
	return nil
}

func runSvReload(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig(cmd)
	if err != nil {
		return err
	}
	t, p, err := connectAndSelect(cfg)
	if err != nil {
		return err
	}
	defer t.Close()

	security, err := cfg.Security.Apply(nil)
	if err != nil {
		return err
	}
	m := buildManager(t, p, security)
	m.PrepareOpenSecureSession(profile.Load)
	m.PrepareSvGet(command.SVOpReload)
	m.PrepareSvReload(int32(svAmount), [2]byte{}, [2]byte{}, [2]byte{})
	m.PrepareCloseSecureSession()
	if err := m.ProcessCommands(apdu.CloseAfter); err != nil {
		return fmt.Errorf("sv reload: %w", err)
	}
	if !outputJSON {
		printSuccess(fmt.Sprintf("reloaded %d, new balance %d", svAmount, p.SV.Balance))
		output.PrintAuditTrail(m.AuditTrail())
	}
	return nil
}

func runSvDebit(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig(cmd)
	if err != nil {
		return err
	}
	t, p, err := connectAndSelect(cfg)
	if err != nil {
		return err
	}
	defer t.Close()

	security, err := cfg.Security.Apply(nil)
	if err != nil {
		return err
	}
	m := buildManager(t, p, security)
	m.PrepareOpenSecureSession(profile.Debit)
	m.PrepareSvGet(command.SVOpDebitOrUndebit)
	m.PrepareSvDebit(int32(svAmount), [2]byte{}, [2]byte{})
	m.PrepareCloseSecureSession()
	if err := m.ProcessCommands(apdu.CloseAfter); err != nil {
		return fmt.Errorf("sv debit: %w", err)
	}
	if !outputJSON {
		printSuccess(fmt.Sprintf("debited %d, new balance %d", svAmount, p.SV.Balance))
		output.PrintAuditTrail(m.AuditTrail())
	}
	return nil
}
