// Command exeedit rewrites the icon, VS_VERSIONINFO, and a handful of
// header fields of a Windows PE/PE32+ executable, without needing Windows
// or a copy of rcedit.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/glaslos/ssdeep"

	"github.com/simonbuchan/npm-exe-edit/internal/cli"
	"github.com/simonbuchan/npm-exe-edit/internal/fsutil"
	"github.com/simonbuchan/npm-exe-edit/internal/pe"
	"github.com/simonbuchan/npm-exe-edit/internal/rw"
)

const usage = `usage: exeedit [flags] INPUT_EXE OUTPUT_EXE

flags:
  -icon PATH             replace the executable's icon with PATH (.ico)
  -no-icon               remove the executable's icon
  -file-version V        set FILEVERSION (1-4 dot-separated components)
  -product-version V     set PRODUCTVERSION (1-4 dot-separated components)
  -set-version NAME VAL  upsert a StringFileInfo entry (repeatable)
  -delete-version NAME   remove a StringFileInfo entry (repeatable)
  -console                set the subsystem to console (3)
  -gui                    set the subsystem to Windows GUI (2)
  -mmap                   back the output file with mmap instead of pread/pwrite
  -describe                print a header/resource summary and exit without editing
  -verbose                print a report before and after editing
  -help                   show this message
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "exeedit:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	pairs, singles, rest, err := cli.ExtractRepeatable(argv, "set-version", "delete-version")
	if err != nil {
		return fmt.Errorf("%w: %v", pe.ErrUsage, err)
	}

	fs := flag.NewFlagSet("exeedit", flag.ContinueOnError)
	iconPath := fs.String("icon", "", "replace icon with this .ico file")
	noIcon := fs.Bool("no-icon", false, "remove the icon")
	fileVersion := fs.String("file-version", "", "FILEVERSION, e.g. 1.2.3.4")
	productVersion := fs.String("product-version", "", "PRODUCTVERSION, e.g. 1.2.3.4")
	console := fs.Bool("console", false, "set subsystem to console (3)")
	gui := fs.Bool("gui", false, "set subsystem to Windows GUI (2)")
	useMmap := fs.Bool("mmap", false, "use mmap for the output file")
	describe := fs.Bool("describe", false, "print a summary and exit without editing")
	verbose := fs.Bool("verbose", false, "print a before/after report")
	help := fs.Bool("help", false, "show usage")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	if err := fs.Parse(rest); err != nil {
		return err
	}
	if *help {
		fmt.Print(usage)
		return nil
	}

	args := fs.Args()
	if *describe {
		if len(args) != 1 {
			fs.Usage()
			return fmt.Errorf("%w: -describe takes exactly one INPUT_EXE argument", pe.ErrUsage)
		}
		return describeFile(args[0])
	}

	if len(args) != 2 {
		fs.Usage()
		return fmt.Errorf("%w: expected INPUT_EXE and OUTPUT_EXE", pe.ErrUsage)
	}
	if *console && *gui {
		return fmt.Errorf("%w: -console and -gui are mutually exclusive", pe.ErrUsage)
	}

	input, output := args[0], args[1]

	opts := pe.EditOptions{
		RemoveIcon:     *noIcon,
		FileVersion:    *fileVersion,
		ProductVersion: *productVersion,
	}
	for _, p := range pairs {
		opts.SetVersions = append(opts.SetVersions, pe.VersionEdit{Name: p.Name, Value: p.Value})
	}
	opts.DeleteVersions = singles
	if *console {
		subsystem := uint16(3)
		opts.Subsystem = &subsystem
	}
	if *gui {
		subsystem := uint16(2)
		opts.Subsystem = &subsystem
	}
	if *iconPath != "" {
		data, err := os.ReadFile(*iconPath)
		if err != nil {
			return fmt.Errorf("read icon %s: %w", *iconPath, err)
		}
		opts.IconData = data
	}

	return editFile(input, output, opts, *useMmap, *verbose)
}

func editFile(input, output string, opts pe.EditOptions, useMmap, verbose bool) error {
	if err := fsutil.CopyFile(output, input); err != nil {
		return err
	}

	backend, fileSize, err := openBackend(output, useMmap)
	if err != nil {
		return err
	}

	session, err := pe.Open(backend)
	if err != nil {
		backend.Close()
		return fmt.Errorf("read %s: %w", output, err)
	}

	if verbose {
		if summary, err := session.Describe(fileSize); err == nil {
			r := cli.NewReporter(output, fileSize, summary)
			r.SetVerbose(true)
			r.Print()
		}
	}

	if err := session.Apply(opts); err != nil {
		backend.Close()
		return fmt.Errorf("edit %s: %w", output, err)
	}
	if err := session.Finish(); err != nil {
		backend.Close()
		return fmt.Errorf("write %s: %w", output, err)
	}
	if err := backend.Close(); err != nil {
		return fmt.Errorf("close %s: %w", output, err)
	}

	if verbose {
		printSimilarity(input, output)
	}
	return nil
}

func describeFile(input string) error {
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	backend, err := rw.OpenFile(input)
	if err != nil {
		return err
	}
	defer backend.Close()

	session, err := pe.Open(backend)
	if err != nil {
		return fmt.Errorf("read %s: %w", input, err)
	}
	summary, err := session.Describe(info.Size())
	if err != nil {
		return fmt.Errorf("describe %s: %w", input, err)
	}

	r := cli.NewReporter(input, info.Size(), summary)
	r.SetVerbose(true)
	r.Print()
	return nil
}

func openBackend(path string, useMmap bool) (pe.RandomAccess, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, err
	}
	if useMmap {
		mf, err := rw.OpenMapped(path)
		if err != nil {
			return nil, 0, err
		}
		return mf, info.Size(), nil
	}
	ff, err := rw.OpenFile(path)
	if err != nil {
		return nil, 0, err
	}
	return ff, info.Size(), nil
}

// printSimilarity reports the ssdeep fuzzy-hash similarity between the
// original and edited files, a quick sanity check that the edit touched
// only what it meant to.
func printSimilarity(input, output string) {
	before, err := ssdeep.FuzzyFilename(input)
	if err != nil {
		return
	}
	after, err := ssdeep.FuzzyFilename(output)
	if err != nil {
		return
	}
	color.New(color.FgHiBlack).Printf("\nfuzzy hash before: %s\nfuzzy hash after:  %s\n", before, after)
	if score, err := ssdeep.Distance(before, after); err == nil {
		color.New(color.FgHiBlack).Printf("similarity:        %d/100\n", score)
	}
}
