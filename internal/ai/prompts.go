package ai

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"tradeflow/internal/logger"
)

// PromptTemplate 描述单个提示词模板，system/user 内以 {{key}} 形式占位。
type PromptTemplate struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	System      string `yaml:"system"`
	User        string `yaml:"user"`
}

// PromptManager 管理模板目录并监听文件变更热加载。
type PromptManager struct {
	dir     string
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	templates map[string]PromptTemplate
	loadedAt  time.Time
}

// NewPromptManager 读取 dir 下所有 *.yaml 模板并开始监听更新。
func NewPromptManager(dir string) (*PromptManager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("prompt manager requires dir")
	}
	m := &PromptManager{dir: dir}
	if err := m.reload(); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("提示词目录监听不可用: %v", err)
		return m, nil
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		logger.Warnf("提示词目录监听失败: %v", err)
		return m, nil
	}
	m.watcher = w
	go m.watch()
	return m, nil
}

// Render 渲染模板，vars 中的键以 {{key}} 形式替换。
func (m *PromptManager) Render(name string, vars map[string]string) (system, user string, err error) {
	m.mu.RLock()
	tpl, ok := m.templates[name]
	m.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("未知提示词模板: %s", name)
	}
	return substitute(tpl.System, vars), substitute(tpl.User, vars), nil
}

// Names 返回已加载的模板名，便于启动时打印。
func (m *PromptManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.templates))
	for name := range m.templates {
		out = append(out, name)
	}
	return out
}

// Close 停止文件监听。
func (m *PromptManager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *PromptManager) watch() {
	for {
		select {
		case evt, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if ext := filepath.Ext(evt.Name); ext != ".yaml" && ext != ".yml" {
				continue
			}
			if err := m.reload(); err != nil {
				logger.Errorf("提示词热加载失败: %v", err)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("提示词目录监听错误: %v", err)
		}
	}
}

func (m *PromptManager) reload() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("读取提示词目录失败: %w", err)
	}
	templates := make(map[string]PromptTemplate)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		tpl, err := readTemplateFile(path)
		if err != nil {
			logger.Errorf("提示词模板 %s 解析失败: %v", e.Name(), err)
			continue
		}
		if tpl.Name == "" {
			tpl.Name = strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		}
		templates[tpl.Name] = tpl
	}
	if len(templates) == 0 {
		return fmt.Errorf("目录 %s 中没有可用模板", m.dir)
	}
	m.mu.Lock()
	m.templates = templates
	m.loadedAt = time.Now()
	m.mu.Unlock()
	logger.Infof("提示词模板已加载 %d 个 (%s)", len(templates), filepath.Base(m.dir))
	return nil
}

func readTemplateFile(path string) (PromptTemplate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PromptTemplate{}, err
	}
	var tpl PromptTemplate
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&tpl); err != nil {
		return PromptTemplate{}, err
	}
	return tpl, nil
}

func substitute(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
