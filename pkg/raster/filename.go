package raster

import (
	"path/filepath"
	"strings"
	"time"

	"Cloud_Animator/internal/models"
)

// 文件名示例:
// OR_ABI-L2-MCMIPC-M3_G16_s20181231_1652CDMX_s20181231_2252UTC_DayLandCloudFire_Mex_Geo.tif
const (
	tokenSatellite = 2
	tokenDate      = 3
	tokenLocalTime = 4
	tokenProduct   = 7

	localTimeSuffix = "CDMX"
)

// ParseFilename 按默认的 GMT-6 时区解析文件名。
func ParseFilename(path string) (models.RasterFile, error) {
	return ParseFilenameIn(path, time.FixedZone("GMT-6", -6*3600))
}

// ParseFilenameIn 是文件名约定的唯一解析入口：第 4 个字段为 s<YYYYMMDD>，
// 第 5 个字段为 <HHMM>CDMX。文件修改时间从不参与判断。
func ParseFilenameIn(path string, loc *time.Location) (models.RasterFile, error) {
	name := filepath.Base(path)
	tokens := strings.Split(strings.TrimSuffix(name, filepath.Ext(name)), "_")
	if len(tokens) <= tokenLocalTime {
		return models.RasterFile{}, &FilenameFormatError{Name: name, Token: -1, Reason: "字段数量不足"}
	}

	dateToken := tokens[tokenDate]
	if len(dateToken) != 9 || dateToken[0] != 's' || !allDigits(dateToken[1:]) {
		return models.RasterFile{}, &FilenameFormatError{Name: name, Token: tokenDate, Reason: "应为 s<YYYYMMDD>"}
	}
	day, err := time.Parse("20060102", dateToken[1:])
	if err != nil {
		return models.RasterFile{}, &FilenameFormatError{Name: name, Token: tokenDate, Reason: "无效日期 " + dateToken[1:]}
	}

	timeToken := tokens[tokenLocalTime]
	clock, ok := strings.CutSuffix(timeToken, localTimeSuffix)
	if !ok || len(clock) != 4 || !allDigits(clock) {
		return models.RasterFile{}, &FilenameFormatError{Name: name, Token: tokenLocalTime, Reason: "应为 <HHMM>CDMX"}
	}
	hour := int(clock[0]-'0')*10 + int(clock[1]-'0')
	minute := int(clock[2]-'0')*10 + int(clock[3]-'0')
	if hour > 23 || minute > 59 {
		return models.RasterFile{}, &FilenameFormatError{Name: name, Token: tokenLocalTime, Reason: "无效时刻 " + clock}
	}

	if loc == nil {
		loc = time.UTC
	}
	rf := models.RasterFile{
		Path:       path,
		Name:       name,
		Satellite:  tokens[tokenSatellite],
		AcquiredAt: time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc),
	}
	if len(tokens) > tokenProduct {
		rf.Product = tokens[tokenProduct]
	}
	return rf, nil
}

// ReprojectedName 把 _Geo 结尾的文件名换成 _conica，用于重投影后的临时文件。
func ReprojectedName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if strings.HasSuffix(stem, "Geo") {
		return strings.TrimSuffix(stem, "Geo") + "conica" + ext
	}
	return stem + "_conica" + ext
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
