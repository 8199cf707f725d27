// Package cli formats exeedit's terminal output.
package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/simonbuchan/npm-exe-edit/internal/pe"
)

// Reporter prints a HeaderSummary as a human-readable pre-mutation report.
type Reporter struct {
	path    string
	size    int64
	summary *pe.HeaderSummary
	verbose bool
}

// NewReporter builds a Reporter for the file at path, sized fileSize.
func NewReporter(path string, fileSize int64, summary *pe.HeaderSummary) *Reporter {
	return &Reporter{path: path, size: fileSize, summary: summary}
}

// SetVerbose adds each signing certificate's subject under the signature
// line.
func (r *Reporter) SetVerbose(verbose bool) { r.verbose = verbose }

// Print writes the full report to stdout.
func (r *Reporter) Print() {
	r.printHeader()
	r.printBasicInfo()
	r.printSections()
	if r.summary.ResourceSections != nil || r.summary.IconCount > 0 || r.summary.HasVersionInfo {
		r.printResources()
	}
}

func (r *Reporter) printHeader() {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Println("\n== exeedit ==")
}

func (r *Reporter) printBasicInfo() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Println("\nfile")

	arch := "PE32"
	if r.summary.Is64 {
		arch = "PE32+"
	}
	fmt.Printf("  %-16s: %s\n", "path", r.path)
	fmt.Printf("  %-16s: %s\n", "size", formatSize(r.size))
	fmt.Printf("  %-16s: %s\n", "format", arch)
	fmt.Printf("  %-16s: %d\n", "subsystem", r.summary.Subsystem)

	fmt.Printf("  %-16s: ", "checksum")
	switch {
	case r.summary.Checksum.Stored == 0:
		color.New(color.FgHiBlack).Print("unset")
	case r.summary.Checksum.Valid:
		color.New(color.FgGreen).Printf("ok (0x%08X)", r.summary.Checksum.Stored)
	default:
		color.New(color.FgRed, color.Bold).Printf("mismatch (stored 0x%08X, computed 0x%08X)",
			r.summary.Checksum.Stored, r.summary.Checksum.Computed)
	}
	fmt.Println()

	fmt.Printf("  %-16s: ", "signature")
	if !r.summary.Signature.IsSigned {
		color.New(color.FgHiBlack).Print("none")
		fmt.Println()
	} else {
		color.New(color.FgGreen).Printf("present (%d certificate(s))\n", len(r.summary.Signature.Certificates))
		if r.verbose {
			for _, c := range r.summary.Signature.Certificates {
				fmt.Printf("       %s\n", c.Subject)
			}
		}
	}
}

func (r *Reporter) printSections() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Printf("\nsections (%d)\n", len(r.summary.Sections))

	fmt.Println(strings.Repeat("-", 72))
	fmt.Printf("  %-10s %-12s %-12s %-12s %s\n", "name", "vaddr", "vsize", "rawsize", "entropy")
	fmt.Println(strings.Repeat("-", 72))
	for _, s := range r.summary.Sections {
		entropyColor := color.New(color.FgWhite)
		if s.Entropy > 7.0 {
			entropyColor = color.New(color.FgRed)
		}
		fmt.Printf("  %-10s 0x%08X   %-12s %-12s ",
			s.Name, s.Virtual.Start, formatSize(int64(s.Virtual.Size)), formatSize(int64(s.File.Size)))
		entropyColor.Printf("%.2f\n", s.Entropy)
	}
	fmt.Println(strings.Repeat("-", 72))
}

func (r *Reporter) printResources() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Println("\nresources")
	fmt.Printf("  %-16s: %d\n", "icon images", r.summary.IconCount)
	fmt.Printf("  %-16s: %v\n", "version info", r.summary.HasVersionInfo)
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
