package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileSink writes each report to {outputDir}/{wallet}/{chainId}/{tokenSymbol}.json.
type FileSink struct {
	outputDir string
	logger    *zap.Logger
}

func NewFileSink(outputDir string, l *zap.Logger) *FileSink {
	return &FileSink{outputDir: outputDir, logger: l}
}

func (s *FileSink) PathFor(r *Report) string {
	wallet := pathSegment(strings.ToLower(r.Wallet), "unknown")
	symbol := pathSegment(r.TokenSymbol, "native")
	return filepath.Join(s.outputDir, wallet, fmt.Sprintf("%d", r.ChainId), fmt.Sprintf("%s.json", symbol))
}

// pathSegment reduces value to a single directory entry name.
func pathSegment(value string, fallback string) string {
	value = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(value)
	value = strings.TrimSpace(value)
	if value == "" || value == "." {
		return fallback
	}
	return value
}

func (s *FileSink) Write(ctx context.Context, r *Report) error {
	path := s.PathFor(r)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	s.logger.Sugar().Infow("Wrote report",
		zap.String("path", path),
		zap.String("runId", r.RunId),
		zap.Int("nodes", r.NodeCount),
	)
	return nil
}

func (s *FileSink) Close() error {
	return nil
}
