// Package progress parses recent command output for progress indicators:
// percentages, fractions, build/test summaries, spinners.
package progress

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/termpilot/engine/internal/domain/entity"
)

var commandTypePatterns = []struct {
	pattern *regexp.Regexp
	typ     entity.CommandType
}{
	{regexp.MustCompile(`^(go build|make|cargo build|gcc|g\+\+|clang|tsc|webpack)\b`), entity.CommandBuild},
	{regexp.MustCompile(`^(wget|curl|scp|rsync)\b`), entity.CommandDownload},
	{regexp.MustCompile(`^(npm install|pip install|apt install|yum install|dnf install|go get)\b`), entity.CommandInstall},
	{regexp.MustCompile(`^(go test|pytest|jest|npm test|cargo test|mvn test)\b`), entity.CommandTest},
	{regexp.MustCompile(`^(gcc|g\+\+|clang|javac|rustc)\b`), entity.CommandCompile},
	{regexp.MustCompile(`^(kubectl apply|docker push|helm (install|upgrade)|terraform apply)\b`), entity.CommandDeploy},
}

// classifyCommand matches a command's head against the fixed taxonomy.
func classifyCommand(command string) entity.CommandType {
	trimmed := strings.TrimSpace(command)
	for _, ct := range commandTypePatterns {
		if ct.pattern.MatchString(trimmed) {
			return ct.typ
		}
	}
	return entity.CommandGeneric
}

var (
	percentagePattern  = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)
	fractionPattern    = regexp.MustCompile(`(?i)\b(\d+)\s*/\s*(\d+)\b`)
	compileFraction    = regexp.MustCompile(`(?i)\[(\d+)/(\d+)\]`)
	cargoPattern       = regexp.MustCompile(`(?i)Compiling\s+(\S+).*?\((\d+)/(\d+)\)`)
	dockerStepPattern  = regexp.MustCompile(`(?i)Step\s+(\d+)/(\d+)`)
	mavenPattern       = regexp.MustCompile(`(?i)\[INFO\].*?(\d+)%`)
	gradlePattern      = regexp.MustCompile(`(?i)<(\-+)>\s*(\d+)%\s*(\w+)?`)
	npmProgressBar     = regexp.MustCompile(`\[=+>?\s*\]\s*(\d+)%`)
	downloadPercent    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)%\s*(?:of|done|complete)?`)
	testPassSummary    = regexp.MustCompile(`(?i)(\d+)\s+passed,?\s+(\d+)\s+failed`)
	etaPattern         = regexp.MustCompile(`(?i)eta\s*[:=]?\s*([\d:hms\s]+)`)
	speedPattern       = regexp.MustCompile(`(?i)([\d.]+\s*[KMG]?i?B/s)`)
	spinnerPattern     = regexp.MustCompile(`[\x{2801}-\x{28FF}|/\\\-]{1}\s*$`)
)

func int64Ptr(v int64) *int64 { return &v }

// DetectProgress scans the last 30 lines of output (newest first) for a
// progress indicator. On each line the detectors run from most to least
// specific: test-pass summary, cargo, docker step, compile fraction, maven,
// gradle, npm progress bar, download percent, bare percentage, generic
// fraction; the bare percentage and generic fraction are therefore only
// used when no specific family matches the line. ETA and speed are
// back-filled from any matching line in the window.
func DetectProgress(output string, command string) entity.ProgressInfo {
	info := entity.ProgressInfo{CommandType: classifyCommand(command)}

	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	window := lines
	if len(window) > 30 {
		window = window[len(window)-30:]
	}
	reversed := make([]string, len(window))
	for i, l := range window {
		reversed[len(window)-1-i] = l
	}

	var eta, speed string
	for _, line := range reversed {
		if eta == "" {
			if m := etaPattern.FindStringSubmatch(line); m != nil {
				eta = strings.TrimSpace(m[1])
			}
		}
		if speed == "" {
			if m := speedPattern.FindStringSubmatch(line); m != nil {
				speed = m[1]
			}
		}
	}

	for _, line := range reversed {
		if pv := tryDetectLine(line); pv != nil {
			pv.ETA = eta
			pv.Speed = speed
			info.Progress = pv
			info.LastUpdate = line
			return info
		}
	}

	for _, line := range reversed {
		if spinnerPattern.MatchString(strings.TrimRight(line, " \t")) {
			info.IsIndeterminate = true
			info.StatusText = strings.TrimSpace(line)
			info.LastUpdate = line
			return info
		}
	}

	return info
}

func tryDetectLine(line string) *entity.ProgressValue {
	if m := testPassSummary.FindStringSubmatch(line); m != nil {
		passed, _ := strconv.ParseInt(m[1], 10, 64)
		failed, _ := strconv.ParseInt(m[2], 10, 64)
		total := passed + failed
		return &entity.ProgressValue{Type: entity.ProgressCount, Value: pct(passed, total), Current: int64Ptr(passed), Total: int64Ptr(total), RawMatch: line}
	}
	if m := cargoPattern.FindStringSubmatch(line); m != nil {
		cur, _ := strconv.ParseInt(m[2], 10, 64)
		tot, _ := strconv.ParseInt(m[3], 10, 64)
		return &entity.ProgressValue{Type: entity.ProgressFraction, Value: pct(cur, tot), Current: int64Ptr(cur), Total: int64Ptr(tot), Stage: m[1], RawMatch: line}
	}
	if m := dockerStepPattern.FindStringSubmatch(line); m != nil {
		cur, _ := strconv.ParseInt(m[1], 10, 64)
		tot, _ := strconv.ParseInt(m[2], 10, 64)
		return &entity.ProgressValue{Type: entity.ProgressFraction, Value: pct(cur, tot), Current: int64Ptr(cur), Total: int64Ptr(tot), RawMatch: line}
	}
	if m := compileFraction.FindStringSubmatch(line); m != nil {
		cur, _ := strconv.ParseInt(m[1], 10, 64)
		tot, _ := strconv.ParseInt(m[2], 10, 64)
		return &entity.ProgressValue{Type: entity.ProgressFraction, Value: pct(cur, tot), Current: int64Ptr(cur), Total: int64Ptr(tot), RawMatch: line}
	}
	if m := mavenPattern.FindStringSubmatch(line); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		return &entity.ProgressValue{Type: entity.ProgressPercentage, Value: v, RawMatch: line}
	}
	if m := gradlePattern.FindStringSubmatch(line); m != nil {
		v, _ := strconv.ParseFloat(m[2], 64)
		return &entity.ProgressValue{Type: entity.ProgressPercentage, Value: v, Stage: m[3], RawMatch: line}
	}
	if m := npmProgressBar.FindStringSubmatch(line); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		return &entity.ProgressValue{Type: entity.ProgressPercentage, Value: v, RawMatch: line}
	}
	if m := downloadPercent.FindStringSubmatch(line); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		return &entity.ProgressValue{Type: entity.ProgressPercentage, Value: v, RawMatch: line}
	}
	if m := percentagePattern.FindStringSubmatch(line); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		return &entity.ProgressValue{Type: entity.ProgressPercentage, Value: v, RawMatch: line}
	}
	if m := fractionPattern.FindStringSubmatch(line); m != nil {
		cur, _ := strconv.ParseInt(m[1], 10, 64)
		tot, _ := strconv.ParseInt(m[2], 10, 64)
		if tot > 0 && cur <= tot {
			return &entity.ProgressValue{Type: entity.ProgressFraction, Value: pct(cur, tot), Current: int64Ptr(cur), Total: int64Ptr(tot), RawMatch: line}
		}
	}
	return nil
}

func pct(cur, total int64) float64 {
	if total <= 0 {
		return 0
	}
	v := float64(cur) / float64(total) * 100
	if v > 100 {
		v = 100
	}
	return v
}

// HasProgressChanged reports whether new is a significant update over old:
// the percent differs by at least 1, or the ETA string changed.
func HasProgressChanged(old, new *entity.ProgressValue) bool {
	if old == nil && new == nil {
		return false
	}
	if old == nil || new == nil {
		return true
	}
	if diff := new.Value - old.Value; diff >= 1 || diff <= -1 {
		return true
	}
	return old.ETA != new.ETA
}
