// Package output renders CardProfile, stored-value and audit-trail
// data for the demo CLI, grounded on the teacher's table.go (same
// go-pretty table/color conventions, now pointed at Calypso-domain
// types instead of SIM/USIM data).
package output

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"calypsocore/profile"
	"calypsocore/transaction"
)

var (
	colorHeader  = text.Colors{text.FgCyan, text.Bold}
	colorLabel   = text.Colors{text.FgYellow}
	colorValue   = text.Colors{text.FgWhite}
	colorSuccess = text.Colors{text.FgGreen}
	colorError   = text.Colors{text.FgRed}
	colorWarn    = text.Colors{text.FgYellow}
)

// getTableStyle returns the default table style.
func getTableStyle() table.Style {
	style := table.StyleRounded
	style.Color.Header = colorHeader
	style.Color.Row = text.Colors{text.FgWhite}
	style.Color.RowAlternate = text.Colors{text.FgHiWhite}
	style.Options.SeparateRows = false
	return style
}

// newTable creates a new table writer with default settings.
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(getTableStyle())
	t.Style().Options.SeparateRows = false
	return t
}

// PrintError prints an error message.
func PrintError(msg string) {
	fmt.Println(colorError.Sprintf("✗ Error: %s", msg))
}

// PrintSuccess prints a success message.
func PrintSuccess(msg string) {
	fmt.Println(colorSuccess.Sprintf("✓ %s", msg))
}

// PrintWarning prints a warning message.
func PrintWarning(msg string) {
	fmt.Println(colorWarn.Sprintf("⚠ %s", msg))
}

// PrintReaderInfo prints the connected reader's name and ATR.
func PrintReaderInfo(readerName, atr string) {
	fmt.Println()
	t := newTable()
	t.SetTitle("READER & CARD INFO")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 15},
		{Number: 2, Colors: colorValue, WidthMin: 50},
	})
	t.AppendRow(table.Row{"Reader", readerName})
	t.AppendRow(table.Row{"ATR", atr})
	t.Render()
}

// PrintReaderList prints available readers.
func PrintReaderList(readers []string) {
	fmt.Println()
	t := newTable()
	t.SetTitle("AVAILABLE SMART CARD READERS")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 8},
		{Number: 2, Colors: colorValue, WidthMin: 50},
	})
	if len(readers) == 0 {
		t.AppendRow(table.Row{"Status", colorWarn.Sprint("No readers found")})
	} else {
		for i, r := range readers {
			t.AppendRow(table.Row{fmt.Sprintf("[%d]", i), r})
		}
	}
	t.Render()
}

// PrintCardProfile prints the selected card's identity, capabilities
// and file directory.
func PrintCardProfile(p *profile.CardProfile) {
	fmt.Println()
	t := newTable()
	t.SetTitle("CALYPSO CARD PROFILE")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 18},
		{Number: 2, Colors: colorValue, WidthMin: 50},
	})
	t.AppendRow(table.Row{"Product Type", p.ProductType.String()})
	t.AppendRow(table.Row{"DF Name", fmt.Sprintf("%X", p.DFName)})
	t.AppendRow(table.Row{"Serial Number", fmt.Sprintf("%X", p.SerialNumber[:])})
	t.AppendRow(table.Row{"Application Type", fmt.Sprintf("%#02x", p.ApplicationType)})
	t.AppendRow(table.Row{"Software Issuer/Version/Rev", fmt.Sprintf("%d/%d/%d", p.SoftwareIssuer, p.SoftwareVersion, p.SoftwareRev)})
	t.AppendRow(table.Row{"Payload Capacity", p.PayloadCapacity})
	t.AppendRow(table.Row{"Invalidated", p.DFInvalidated})
	t.AppendRow(table.Row{"HCE", p.HCE})
	t.Render()

	fmt.Println()
	caps := newTable()
	caps.SetTitle("CAPABILITIES")
	caps.AppendHeader(table.Row{"PIN", "SV", "Ratify-on-Deselect", "Extended Mode", "PKI"})
	caps.AppendRow(table.Row{p.Capabilities.PIN, p.Capabilities.SV, p.Capabilities.RatificationOnDeselectActive, p.Capabilities.ExtendedMode, p.Capabilities.PKI})
	caps.Render()

	if len(p.FilesBySFI) == 0 {
		return
	}
	fmt.Println()
	files := newTable()
	files.SetTitle("FILE DIRECTORY")
	files.AppendHeader(table.Row{"SFI", "LID", "Type", "Record Size", "Records"})
	for sfi, f := range p.FilesBySFI {
		files.AppendRow(table.Row{fmt.Sprintf("%#02x", sfi), fmt.Sprintf("%#04x", f.LID), f.Type, f.RecordSize, f.RecordsNumber})
	}
	files.Render()
}

// PrintSVState prints the electronic purse's current balance and load/
// debit logs, per §4.5.
func PrintSVState(sv profile.SVState) {
	fmt.Println()
	t := newTable()
	t.SetTitle("STORED VALUE")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 15},
		{Number: 2, Colors: colorValue, WidthMin: 50},
	})
	if !sv.GotSVGet {
		t.AppendRow(table.Row{"Status", colorWarn.Sprint("no SvGet performed this transaction")})
		t.Render()
		return
	}
	t.AppendRow(table.Row{"Balance", sv.Balance})
	t.AppendRow(table.Row{"Last TNum", sv.LastTNum})
	t.Render()

	if sv.LastLoadLog != nil {
		printSVLog("LAST LOAD LOG", *sv.LastLoadLog)
	}
	if sv.LastDebitLog != nil {
		printSVLog("LAST DEBIT LOG", *sv.LastDebitLog)
	}
}

func printSVLog(title string, log profile.SVLog) {
	fmt.Println()
	t := newTable()
	t.SetTitle(title)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 15},
		{Number: 2, Colors: colorValue, WidthMin: 50},
	})
	t.AppendRow(table.Row{"Date/Time", fmt.Sprintf("%#04x / %#04x", log.Date, log.Time)})
	t.AppendRow(table.Row{"Amount", log.Amount})
	t.AppendRow(table.Row{"Balance", log.Balance})
	t.AppendRow(table.Row{"KVC", fmt.Sprintf("%#02x", log.KVC)})
	t.AppendRow(table.Row{"SAM ID/TNum", fmt.Sprintf("%#08x / %d", log.SamID, log.SamTNum)})
	t.AppendRow(table.Row{"SV TNum", log.SVTNum})
	t.Render()
}

// PrintAuditTrail prints the raw APDU exchanges recorded by the most
// recent processCommands drain.
func PrintAuditTrail(entries []transaction.AuditEntry) {
	fmt.Println()
	t := newTable()
	t.SetTitle("AUDIT TRAIL")
	t.AppendHeader(table.Row{"#", "Command", "Request (hex)", "Response (hex)", "SW"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Colors: colorLabel},
		{Number: 3, WidthMax: 60},
		{Number: 4, WidthMax: 60},
	})
	for i, e := range entries {
		t.AppendRow(table.Row{i + 1, e.Command, fmt.Sprintf("%X", e.Request), fmt.Sprintf("%X", e.Response), e.StatusWord.String()})
	}
	t.Render()
}
