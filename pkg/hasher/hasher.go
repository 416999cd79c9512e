package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/ajdnik/imghash"
)

// CalculateSHA256FromBytes 从字节切片计算 SHA-256 哈希
func CalculateSHA256FromBytes(data []byte) string {
	hashBytes := sha256.Sum256(data)
	return hex.EncodeToString(hashBytes[:])
}

// CalculateSHA256 计算并返回一个文件的SHA-256哈希值。
func CalculateSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentKey 把源文件内容哈希与渲染参数指纹组合成帧缓存的键。
// 任何一个参数变化都会得到新的键。
func ContentKey(filePath string, params ...string) (string, error) {
	fileHash, err := CalculateSHA256(filePath)
	if err != nil {
		return "", fmt.Errorf("计算内容哈希失败: %w", err)
	}
	return CalculateSHA256FromBytes([]byte(fileHash + "|" + strings.Join(params, "|"))), nil
}

// CalculatePerceptualHashFromImage 从已解码的 image.Image 对象计算感知哈希
func CalculatePerceptualHashFromImage(img image.Image) string {
	phasher := imghash.NewPHash()
	return fmt.Sprintf("%d", phasher.Calculate(img))
}
