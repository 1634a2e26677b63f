package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"cryptobot/internal/strategy"
)

// Decision is one line of the NDJSON audit trail: what the rules saw for a
// pair, what they wanted, and what actually happened.
type Decision struct {
	RunID        string          `json:"run_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Scan         string          `json:"scan"`
	Pair         string          `json:"pair"`
	RSI          float64         `json:"rsi"`
	RSIValid     bool            `json:"rsi_valid"`
	Price        float64         `json:"price"`
	Volume       float64         `json:"volume,omitempty"`
	ProfitMargin float64         `json:"profit_margin,omitempty"`
	Intent       strategy.Action `json:"intent"`
	Reason       string          `json:"reason"`
	Result       string          `json:"result"`
	RejectReason string          `json:"reject_reason,omitempty"`
	OrderID      string          `json:"order_id,omitempty"`
}

// DecisionLogger appends decisions to an NDJSON file. Logging failures are
// reported on stderr and never interrupt trading.
type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (d *DecisionLogger) RunID() string {
	return d.runID
}

func (d *DecisionLogger) Append(decision Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	payload, err := json.Marshal(decision)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal decision: %v\n", err)
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write decision: %v\n", err)
		return
	}
	if err := d.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush decision log: %v\n", err)
	}
}

func (d *DecisionLogger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
