// Package report renders a completed rotation session in human-oriented
// formats. A session collects every attempt result plus the run's framing
// data; writers turn it into Markdown or JSON for sharing and automation.
package report
