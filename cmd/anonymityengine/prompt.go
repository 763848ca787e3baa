package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/zioerenkl/AnonymityEngine/internal/config"
)

// promptInterval asks the user for the rotation interval in seconds and
// re-prompts until the answer is a number within the configured bounds.
// Separated from the cobra wiring so tests can drive it with a bytes.Buffer.
func promptInterval(in io.Reader, out io.Writer, cfg *config.Config) (time.Duration, error) {
	scanner := bufio.NewScanner(in)
	minSec := int(cfg.MinInterval / time.Second)
	maxSec := int(cfg.MaxInterval / time.Second)

	for {
		fmt.Fprintf(out, "Enter rotation interval in seconds (%d-%d): ", minSec, maxSec)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}

		raw := strings.TrimSpace(scanner.Text())
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Fprintf(out, "Invalid number %q, try again.\n", raw)
			continue
		}

		interval := time.Duration(seconds) * time.Second
		if interval < cfg.MinInterval || interval > cfg.MaxInterval {
			fmt.Fprintf(out, "Interval must be between %d and %d seconds.\n", minSec, maxSec)
			continue
		}
		return interval, nil
	}
}

// promptCount asks how many rotations to perform. Zero means run until
// interrupted; negative answers are rejected and re-prompted.
func promptCount(in io.Reader, out io.Writer) (int, error) {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "How many rotations to perform? (0 = until interrupted): ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}

		raw := strings.TrimSpace(scanner.Text())
		count, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Fprintf(out, "Invalid number %q, try again.\n", raw)
			continue
		}
		if count < 0 {
			fmt.Fprintln(out, "Count must be zero or positive.")
			continue
		}
		return count, nil
	}
}
