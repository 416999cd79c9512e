package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"Cloud_Animator/config"
	"Cloud_Animator/pkg/database"
	"Cloud_Animator/pkg/hasher"
	"Cloud_Animator/pkg/workspace"
)

// Maintenance 定义了维护工具的接口
type Maintenance interface {
	// GenerateFileManifest 为输出目录中的视频和报告生成 sha256 清单，返回清单路径。
	GenerateFileManifest(ctx context.Context, outputRoot, manifestDir string) (string, error)
	// PurgeWorkspace 删除没有被任何运行持有锁的残留工作目录。
	PurgeWorkspace(ctx context.Context, workspaceRoot string) ([]string, error)
	// BackupDatabase 备份目录库，返回备份文件路径。
	BackupDatabase(ctx context.Context, db config.DatabaseConfig, store database.Store, outputPath string) (string, error)
}

// Backuper 由能自行导出快照的存储实现（SQLite）。
type Backuper interface {
	Backup(ctx context.Context, dest string) error
}

type defaultMaintenance struct {
	logger     *slog.Logger
	numWorkers int
	now        func() time.Time
}

// NewMaintenance 创建一个新的维护模块实例
func NewMaintenance(logger *slog.Logger, workerCount int) Maintenance {
	if logger == nil {
		logger = slog.Default()
	}
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &defaultMaintenance{
		logger:     logger.With("module", "maintenance"),
		numWorkers: workerCount,
		now:        time.Now,
	}
}

// GenerateFileManifest 并发计算哈希，清单按相对路径排序。
func (m *defaultMaintenance) GenerateFileManifest(ctx context.Context, outputRoot, manifestDir string) (string, error) {
	m.logger.Info("--- 开始生成文件清单 ---", "root", outputRoot)

	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		return "", fmt.Errorf("无法创建清单目录: %w", err)
	}
	manifestPath := filepath.Join(manifestDir, fmt.Sprintf("manifest_%s.txt", m.now().Format("2006-01-02")))

	var wg sync.WaitGroup
	tasks := make(chan string, m.numWorkers)
	results := make(chan string, m.numWorkers)

	for i := 0; i < m.numWorkers; i++ {
		wg.Add(1)
		go m.manifestWorker(&wg, outputRoot, tasks, results)
	}

	var lines []string
	var collectWg sync.WaitGroup
	collectWg.Add(1)
	go func() {
		defer collectWg.Done()
		for line := range results {
			lines = append(lines, line)
		}
	}()

	absManifest, _ := filepath.Abs(manifestPath)
	walkErr := filepath.WalkDir(outputRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.Contains(d.Name(), ".partial") {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == absManifest {
			return nil
		}
		tasks <- path
		return nil
	})
	close(tasks)
	wg.Wait()
	close(results)
	collectWg.Wait()
	if walkErr != nil {
		return "", fmt.Errorf("扫描输出目录失败: %w", walkErr)
	}

	sort.Slice(lines, func(i, j int) bool {
		return lines[i][strings.Index(lines[i], "*"):] < lines[j][strings.Index(lines[j], "*"):]
	})
	if err := os.WriteFile(manifestPath, []byte(strings.Join(lines, "")), 0o644); err != nil {
		return "", fmt.Errorf("无法写入清单文件: %w", err)
	}
	m.logger.Info("--- 文件清单生成完毕 ---", "path", manifestPath, "files", len(lines))
	return manifestPath, nil
}

// manifestWorker 是计算哈希并格式化输出的工人
func (m *defaultMaintenance) manifestWorker(wg *sync.WaitGroup, root string, tasks <-chan string, results chan<- string) {
	defer wg.Done()
	for path := range tasks {
		hash, err := hasher.CalculateSHA256(path)
		if err != nil {
			m.logger.Warn("计算文件哈希失败", "file", path, "error", err)
			continue
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			relPath = path
		}
		// 为了可移植性，将路径分隔符统一为 '/'
		results <- fmt.Sprintf("%s *%s\n", hash, filepath.ToSlash(relPath))
	}
}

func (m *defaultMaintenance) PurgeWorkspace(ctx context.Context, workspaceRoot string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	removed, err := workspace.PurgeStale(workspaceRoot)
	for _, p := range removed {
		m.logger.Info("已删除残留工作目录", "path", p)
	}
	if err != nil {
		return removed, fmt.Errorf("清理工作区失败: %w", err)
	}
	return removed, nil
}

// BackupDatabase 对 mongo 调用 mongodump，对 SQLite 导出一份一致的快照。
func (m *defaultMaintenance) BackupDatabase(ctx context.Context, db config.DatabaseConfig, store database.Store, outputPath string) (string, error) {
	m.logger.Info("--- 开始执行数据库备份 ---", "driver", db.Driver)
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return "", fmt.Errorf("无法创建备份目录: %w", err)
	}
	stamp := m.now().Format("2006-01-02_150405")

	switch db.Driver {
	case config.DriverMongo:
		if _, err := exec.LookPath("mongodump"); err != nil {
			m.logger.Error("在系统 PATH 中找不到 'mongodump' 命令，请安装 MongoDB Database Tools")
			return "", fmt.Errorf("'mongodump' command not found in PATH")
		}
		archiveFile := filepath.Join(outputPath, fmt.Sprintf("db_backup_%s.gz", stamp))
		cmd := exec.CommandContext(ctx, "mongodump",
			"--uri", db.URI,
			"--db", db.Name,
			"--archive="+archiveFile,
			"--gzip",
		)
		if output, err := cmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("执行 mongodump 失败: %w: %s", err, strings.TrimSpace(string(output)))
		}
		m.logger.Info("--- 数据库备份成功 ---", "path", archiveFile)
		return archiveFile, nil

	case config.DriverSQLite:
		b, ok := store.(Backuper)
		if !ok {
			return "", fmt.Errorf("当前目录库不支持备份")
		}
		dest := filepath.Join(outputPath, fmt.Sprintf("catalog_backup_%s.db", stamp))
		if err := b.Backup(ctx, dest); err != nil {
			return "", fmt.Errorf("导出 SQLite 快照失败: %w", err)
		}
		m.logger.Info("--- 数据库备份成功 ---", "path", dest)
		return dest, nil

	default:
		return "", fmt.Errorf("驱动 '%s' 没有可备份的数据库", db.Driver)
	}
}
