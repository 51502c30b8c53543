package importer

import (
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// fileNameRe recovers "<order number><separator><operation code>" from loosely
// named workbooks, e.g. "1042_AB1.xlsm" or "1042-OP20 rev2.xlsm".
var fileNameRe = regexp.MustCompile(`(\d+)[_\-]([0-9A-Za-z]{2,8})`)

// folderMonthRe matches archive month folders named "MM-YYYY".
var folderMonthRe = regexp.MustCompile(`^\s*(\d{1,2})-(\d{4})\s*$`)

// InferOrderOperation derives the order number and operation code from a
// workbook file name. ok is false when the name does not follow the archive
// convention; such files are skipped, not fatal.
func InferOrderOperation(name string) (orderNumber int, operationCode string, ok bool) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return n, m[2], true
}

func monthStartFromFolder(name string) (time.Time, bool) {
	m := folderMonthRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	mm, _ := strconv.Atoi(m[1])
	yyyy, _ := strconv.Atoi(m[2])
	if mm < 1 || mm > 12 {
		return time.Time{}, false
	}
	return time.Date(yyyy, time.Month(mm), 1, 0, 0, 0, 0, time.UTC), true
}

// InferMonthStart derives the reporting month from the workbook's parent
// folder, then the grandparent (some months nest an extra level), then
// defaults to the first day of the current month so a usable date always
// exists.
func InferMonthStart(path string, now time.Time) time.Time {
	parent := filepath.Dir(path)
	if ms, ok := monthStartFromFolder(filepath.Base(parent)); ok {
		return ms
	}
	if ms, ok := monthStartFromFolder(filepath.Base(filepath.Dir(parent))); ok {
		return ms
	}
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
