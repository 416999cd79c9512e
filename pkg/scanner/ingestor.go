package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"Cloud_Animator/internal/models"
	"Cloud_Animator/pkg/database"
	"Cloud_Animator/pkg/sequence"
	"Cloud_Animator/pkg/thumbnailer"
)

// ReportIngestor 在一个年份结束后持久化结果：输出目录中的 YAML 报告，
// 以及目录库中的报告和帧记录。
type ReportIngestor interface {
	Ingest(ctx context.Context, report *models.YearReport, seq sequence.Sequence, outputDir string) error
}

type catalogIngestor struct {
	dbStore database.Store
	logger  *slog.Logger
}

// NewIngestor 创建入库器。dbStore 为 nil 时只写 YAML 报告。
func NewIngestor(dbStore database.Store, logger *slog.Logger) ReportIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &catalogIngestor{dbStore: dbStore, logger: logger.With("module", "ingestor")}
}

func (c *catalogIngestor) Ingest(ctx context.Context, report *models.YearReport, seq sequence.Sequence, outputDir string) error {
	if seq.Len() > 0 && report.Thumbnail == "" {
		cover, err := thumbnailer.Cover(seq.Frames[0].Path)
		if err != nil {
			c.logger.Warn("生成封面失败", "error", err)
		} else {
			report.Thumbnail = cover
		}
	}

	var errs []string
	if err := c.writeYAML(report, outputDir); err != nil {
		c.logger.Warn("写入 YAML 报告失败", "error", err)
		errs = append(errs, err.Error())
	}

	if c.dbStore == nil {
		return joinErrors(errs)
	}
	if err := c.dbStore.Reports().Save(ctx, report); err != nil {
		c.logger.Warn("保存报告到目录库失败", "error", err)
		errs = append(errs, fmt.Sprintf("保存报告: %v", err))
	}
	records := FrameRecords(report, seq)
	if err := c.dbStore.Frames().ReplaceForRun(ctx, report.RunID, records); err != nil {
		c.logger.Warn("保存帧记录到目录库失败", "error", err)
		errs = append(errs, fmt.Sprintf("保存帧记录: %v", err))
	}
	return joinErrors(errs)
}

func (c *catalogIngestor) writeYAML(report *models.YearReport, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(report)
	if err != nil {
		return err
	}
	name := sequence.OutputName(report.Sensor, report.Product, report.Year, "yaml")
	return os.WriteFile(filepath.Join(outputDir, name), data, 0o644)
}

// FrameRecords 把序列转换成目录库中的帧记录。
func FrameRecords(report *models.YearReport, seq sequence.Sequence) []models.FrameRecord {
	records := make([]models.FrameRecord, 0, seq.Len())
	for _, f := range seq.Frames {
		records = append(records, models.FrameRecord{
			RunID:          report.RunID,
			Product:        report.Product,
			Year:           report.Year,
			Index:          f.Index,
			SequenceName:   f.SequenceName,
			SourceName:     f.Source.Name,
			AcquiredAt:     f.Timestamp,
			PerceptualHash: f.PerceptualHash,
		})
	}
	return records
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("入库未完全成功: %s", strings.Join(errs, "; "))
}
