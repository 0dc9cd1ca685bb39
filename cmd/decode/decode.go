// Package decode implements the offline decode command, which turns a raw
// dump of spectrometer buffers into the float32 payloads the daemon streams.
package decode

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/maia-sdr/spectrometerd/internal/conf"
	"github.com/maia-sdr/spectrometerd/internal/errors"
	"github.com/maia-sdr/spectrometerd/internal/spectrometer"
)

// Options controls a decode run.
type Options struct {
	Bins     int     // words per spectrum
	Scale    float32 // factor applied to every magnitude
	Overflow spectrometer.OverflowPolicy
}

// Command creates the decode command.
func Command() *cobra.Command {
	var (
		opts     Options
		overflow string
		outPath  string
	)

	cmd := &cobra.Command{
		Use:   "decode <dump>",
		Short: "Decode a raw spectrometer buffer dump",
		Long: "Decode a file of little-endian 64-bit spectrometer words into native-endian float32 spectra.\n" +
			"Use - to read from stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := spectrometer.ParseOverflowPolicy(overflow)
			if err != nil {
				return err
			}
			opts.Overflow = policy

			n, err := decodeFile(cmd, args[0], outPath, opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "decoded %d spectra\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Bins, "bins", conf.DefaultFFTSize, "Words per spectrum")
	cmd.Flags().Float32Var(&opts.Scale, "scale", 1, "Scale applied to every magnitude")
	cmd.Flags().StringVar(&overflow, "overflow", spectrometer.OverflowWiden.String(), "Handling of magnitudes wider than 64 bits: widen, wrap or saturate")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default stdout)")

	return cmd
}

// decodeFile runs the decoder between the named input ("-" for stdin) and
// output (empty for stdout). A failed close of the output file is reported.
func decodeFile(cmd *cobra.Command, inPath, outPath string, opts Options) (n int, err error) {
	in := cmd.InOrStdin()
	if inPath != "-" {
		f, err := os.Open(inPath) //nolint:gosec // G304: user supplied input path
		if err != nil {
			return 0, err
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	out := cmd.OutOrStdout()
	if outPath != "" {
		f, cerr := os.Create(outPath) //nolint:gosec // G304: user supplied output path
		if cerr != nil {
			return 0, cerr
		}
		defer closeOutput(f, &err)
		out = f
	}

	return Run(in, out, opts)
}

// closeOutput closes c and stores its error in errp unless an earlier error
// is already there.
func closeOutput(c io.Closer, errp *error) {
	if cerr := c.Close(); cerr != nil && *errp == nil {
		*errp = errors.New(fmt.Errorf("close output: %w", cerr)).
			Component("decode").
			Category(errors.CategoryFileIO).
			Build()
	}
}

// Run decodes whole spectra from in to out and returns how many it wrote.
// Trailing bytes that do not form a whole spectrum are an error.
func Run(in io.Reader, out io.Writer, opts Options) (int, error) {
	if opts.Bins <= 0 {
		return 0, errors.Newf("bins must be positive, got %d", opts.Bins).
			Component("decode").
			Category(errors.CategoryValidation).
			Build()
	}

	dec := spectrometer.Decoder{Overflow: opts.Overflow}
	r := bufio.NewReader(in)
	w := bufio.NewWriter(out)

	raw := make([]byte, opts.Bins*8)
	words := make([]uint64, opts.Bins)
	payload := make([]byte, 0, opts.Bins*spectrometer.BytesPerBin)

	count := 0
	for {
		n, err := io.ReadFull(r, raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return count, errors.Newf("truncated spectrum after %d spectra: %d trailing bytes", count, n).
				Component("decode").
				Category(errors.CategoryDecode).
				Build()
		}
		if err != nil {
			return count, err
		}

		for i := range words {
			words[i] = binary.LittleEndian.Uint64(raw[i*8:])
		}
		payload = dec.DecodeInto(payload[:0], words, opts.Scale)
		if _, err := w.Write(payload); err != nil {
			return count, err
		}
		count++
	}

	return count, w.Flush()
}
