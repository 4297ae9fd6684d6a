package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"calypsocore/apdu"
	"calypsocore/output"
	"calypsocore/transport"
)

var (
	readSFI       int
	readRecordNum int
)

var readRecordCmd = &cobra.Command{
	Use:   "read-record",
	Short: "Select the card and read one record",
	Long: `Connect to the reader, select the configured AID, read one
record by SFI and record number, and print the audit trail.

Example:
  calypso-cli read-record --sfi 0x04 --record 1`,
	RunE: runReadRecord,
}

func init() {
	readRecordCmd.Flags().IntVar(&readSFI, "sfi", 0, "Short file identifier to read (e.g. 0x04)")
	readRecordCmd.Flags().IntVar(&readRecordNum, "record", 1, "Record number to read")
}

var readersCmd = &cobra.Command{
	Use:   "readers",
	Short: "List available PC/SC readers",
	RunE:  runListReaders,
}

func runListReaders(cmd *cobra.Command, args []string) error {
	readers, err := transport.ListReaders()
	if err != nil {
		return err
	}
	output.PrintReaderList(readers)
	return nil
}

func runReadRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig(cmd)
	if err != nil {
		return err
	}
	t, p, err := connectAndSelect(cfg)
	if err != nil {
		return err
	}
	defer t.Close()
	printSuccess(fmt.Sprintf("selected %X", p.AID))

	security, err := cfg.Security.Apply(nil)
	if err != nil {
		return err
	}
	m := buildManager(t, p, security)
	m.PrepareReadRecord(byte(readSFI), readRecordNum)
	if err := m.ProcessCommands(apdu.CloseAfter); err != nil {
		return fmt.Errorf("read record: %w", err)
	}

	f, ok := p.FileBySFI(byte(readSFI))
	if !ok {
		return fmt.Errorf("file %#02x was not registered on this profile", readSFI)
	}
	rec, ok := f.Record(readRecordNum)
	if !ok {
		return fmt.Errorf("record %d was not populated", readRecordNum)
	}
	if !outputJSON {
		fmt.Printf("record %#02x/%d: %X\n", readSFI, readRecordNum, rec)
		output.PrintAuditTrail(m.AuditTrail())
	}
	return nil
}
