package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is how many user config backups are kept.
	MaxBackups = 3

	// BackupSuffix precedes the timestamp in backup file names.
	BackupSuffix = ".bak"
)

// BackupUserConfig copies the user config to a timestamped sibling and prunes
// backups beyond MaxBackups. It returns "" when there is no user config.
func BackupUserConfig() (string, error) {
	configPath := GetUserConfigPath()
	if !UserConfigExists() {
		return "", nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}
	backupPath := fmt.Sprintf("%s%s.%s", configPath, BackupSuffix, time.Now().Format("20060102-150405.000"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	backups, err := ListUserConfigBackups()
	if err == nil && len(backups) > MaxBackups {
		for _, old := range backups[MaxBackups:] {
			_ = os.Remove(old)
		}
	}
	return backupPath, nil
}

// ListUserConfigBackups returns user config backups, newest first.
func ListUserConfigBackups() ([]string, error) {
	configPath := GetUserConfigPath()
	entries, err := os.ReadDir(filepath.Dir(configPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	prefix := filepath.Base(configPath) + BackupSuffix + "."
	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			backups = append(backups, filepath.Join(filepath.Dir(configPath), e.Name()))
		}
	}
	// timestamps sort lexically
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}
