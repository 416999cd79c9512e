// Package workspace 管理每个 (产品, 年份) 运行独占的临时目录。
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"Cloud_Animator/internal/models"
)

// ErrLocked 表示同一 (产品, 年份) 正在被另一个进程处理。
var ErrLocked = errors.New("该年份正在被其他运行处理")

const (
	cacheDirName = ".cache"
	lockSuffix   = ".lock"
)

// Workspace 是一次年度运行的目录布局：
//
//	<root>/<product>/<year>.lock
//	<root>/<product>/<year>/<runID>/{reprojected,frames,sequence}
type Workspace struct {
	RunID       string
	Dir         string
	Reprojected string
	Frames      string
	Sequence    string

	keep bool
	lock *flock.Flock
}

// Acquire 获取 (product, year) 的文件锁并创建一个新的运行目录。
// 锁被占用时返回 ErrLocked；目录无法创建时返回包装了 models.ErrWorkspaceIO 的错误。
func Acquire(root, product, year string, keep bool) (*Workspace, error) {
	productDir := filepath.Join(root, product)
	if err := os.MkdirAll(productDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: 创建 %s: %v", models.ErrWorkspaceIO, productDir, err)
	}

	lock := flock.New(filepath.Join(productDir, year+lockSuffix))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: 获取锁: %v", models.ErrWorkspaceIO, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrLocked, product, year)
	}

	runID := uuid.NewString()
	ws := &Workspace{
		RunID: runID,
		Dir:   filepath.Join(productDir, year, runID),
		keep:  keep,
		lock:  lock,
	}
	ws.Reprojected = filepath.Join(ws.Dir, "reprojected")
	ws.Frames = filepath.Join(ws.Dir, "frames")
	ws.Sequence = filepath.Join(ws.Dir, "sequence")
	for _, dir := range []string{ws.Reprojected, ws.Frames, ws.Sequence} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = lock.Unlock()
			return nil, fmt.Errorf("%w: 创建 %s: %v", models.ErrWorkspaceIO, dir, err)
		}
	}
	return ws, nil
}

// Release 删除运行目录（除非要求保留）并释放锁。
func (w *Workspace) Release() error {
	var errs []error
	if !w.keep {
		if err := os.RemoveAll(w.Dir); err != nil {
			errs = append(errs, fmt.Errorf("清理工作区 %s: %w", w.Dir, err))
		}
	}
	if err := w.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("释放锁: %w", err))
	}
	return errors.Join(errs...)
}

// CacheDir 是所有运行共享的帧缓存目录。以点开头，不会与产品目录重名。
func CacheDir(root string) string {
	return filepath.Join(root, cacheDirName)
}

// PurgeStale 删除没有被任何运行持有锁的年份目录中的残留运行目录，返回被删除的路径。
func PurgeStale(root string) ([]string, error) {
	products, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var removed []string
	for _, p := range products {
		if !p.IsDir() || strings.HasPrefix(p.Name(), ".") {
			continue
		}
		productDir := filepath.Join(root, p.Name())
		years, err := os.ReadDir(productDir)
		if err != nil {
			return removed, err
		}
		for _, y := range years {
			if !y.IsDir() {
				continue
			}
			paths, err := purgeYear(productDir, y.Name())
			removed = append(removed, paths...)
			if err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}

func purgeYear(productDir, year string) ([]string, error) {
	lock := flock.New(filepath.Join(productDir, year+lockSuffix))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	defer lock.Unlock()

	yearDir := filepath.Join(productDir, year)
	runs, err := os.ReadDir(yearDir)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, r := range runs {
		path := filepath.Join(yearDir, r.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}
	return removed, nil
}
