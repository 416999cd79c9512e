package compositor

import (
	"fmt"
	"os"
	"path/filepath"

	"Cloud_Animator/pkg/fileutil"
	"Cloud_Animator/pkg/hasher"
)

// FrameCache 是按内容寻址的已渲染帧缓存，取代“输出文件已存在就跳过”的隐式检查。
type FrameCache struct {
	dir string
}

func NewFrameCache(dir string) (*FrameCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("无法创建帧缓存目录: %w", err)
	}
	return &FrameCache{dir: dir}, nil
}

// Key 由源栅格内容与渲染指纹计算缓存键。
func (c *FrameCache) Key(srcPath, fingerprint string) (string, error) {
	return hasher.ContentKey(srcPath, fingerprint)
}

func (c *FrameCache) path(key string) string {
	return filepath.Join(c.dir, key[:2], key+".png")
}

// Lookup 命中时把缓存帧复制到 dst。
func (c *FrameCache) Lookup(key, dst string) (bool, error) {
	cached := c.path(key)
	if !fileutil.Exists(cached) {
		return false, nil
	}
	if err := fileutil.CopyFile(cached, dst); err != nil {
		return false, fmt.Errorf("读取缓存帧失败: %w", err)
	}
	return true, nil
}

// Store 把刚渲染好的帧写入缓存。
func (c *FrameCache) Store(key, src string) error {
	cached := c.path(key)
	if err := os.MkdirAll(filepath.Dir(cached), 0o755); err != nil {
		return err
	}
	return fileutil.CopyFileAtomic(src, cached)
}
