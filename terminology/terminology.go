// Package terminology 提供电影分镜标准术语（景别、拍摄角度、运镜方式），
// 用于特征分析提示词和术语查询接口。
package terminology

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed shots.yaml
var shotsYAML []byte

// Group 术语分组
type Group string

const (
	GroupShotSizes       Group = "shot_sizes"
	GroupCameraAngles    Group = "camera_angles"
	GroupCameraMovements Group = "camera_movements"
)

// Groups 按展示顺序返回所有分组。
func Groups() []Group {
	return []Group{GroupShotSizes, GroupCameraAngles, GroupCameraMovements}
}

// Term 单个术语条目
type Term struct {
	Key         string `yaml:"key" json:"-"`
	Name        string `yaml:"name" json:"name"`
	NameEn      string `yaml:"name_en" json:"name_en"`
	Abbr        string `yaml:"abbr" json:"abbr"`
	Description string `yaml:"description" json:"description"`
}

// Catalogue 有序的术语表
type Catalogue struct {
	ShotSizes       []Term `yaml:"shot_sizes"`
	CameraAngles    []Term `yaml:"camera_angles"`
	CameraMovements []Term `yaml:"camera_movements"`

	index map[string]indexed
}

type indexed struct {
	term  Term
	group Group
}

// Parse 解析 YAML 术语表。同一个 key 只能出现一次。
func Parse(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse terminology: %w", err)
	}
	c.index = make(map[string]indexed)
	for _, g := range Groups() {
		for _, t := range c.Terms(g) {
			if t.Key == "" {
				return nil, fmt.Errorf("terminology group %s: entry without key", g)
			}
			if prev, dup := c.index[t.Key]; dup {
				return nil, fmt.Errorf("terminology key %q defined in both %s and %s", t.Key, prev.group, g)
			}
			c.index[t.Key] = indexed{term: t, group: g}
		}
	}
	return &c, nil
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalogue
)

// Default 返回内置术语表。
func Default() *Catalogue {
	defaultOnce.Do(func() {
		c, err := Parse(shotsYAML)
		if err != nil {
			panic(err)
		}
		defaultCat = c
	})
	return defaultCat
}

// Terms 返回分组内的术语（保持定义顺序）。
func (c *Catalogue) Terms(g Group) []Term {
	switch g {
	case GroupShotSizes:
		return c.ShotSizes
	case GroupCameraAngles:
		return c.CameraAngles
	case GroupCameraMovements:
		return c.CameraMovements
	default:
		return nil
	}
}

// Lookup 按 key 查找术语及其分组。
func (c *Catalogue) Lookup(key string) (Term, Group, bool) {
	e, ok := c.index[key]
	return e.term, e.group, ok
}

// ChineseName 返回中文名称；未知 key 原样返回。
func (c *Catalogue) ChineseName(key string) string {
	if t, _, ok := c.Lookup(key); ok {
		return t.Name
	}
	return key
}

// IsValid 判断 key 是否为已知术语；group 为空时在所有分组中查找。
func (c *Catalogue) IsValid(key string, group Group) bool {
	_, g, ok := c.Lookup(key)
	if !ok {
		return false
	}
	return group == "" || g == group
}

// Keys 返回每个分组的 key 列表。
func (c *Catalogue) Keys() map[Group][]string {
	out := make(map[Group][]string, 3)
	for _, g := range Groups() {
		terms := c.Terms(g)
		keys := make([]string, 0, len(terms))
		for _, t := range terms {
			keys = append(keys, t.Key)
		}
		out[g] = keys
	}
	return out
}

// ByGroup 返回 group → key → term 的完整视图。
func (c *Catalogue) ByGroup() map[Group]map[string]Term {
	out := make(map[Group]map[string]Term, 3)
	for _, g := range Groups() {
		m := make(map[string]Term, len(c.Terms(g)))
		for _, t := range c.Terms(g) {
			m[t.Key] = t
		}
		out[g] = m
	}
	return out
}

var groupTitles = map[Group]string{
	GroupShotSizes:       "景别分类 (Shot Size)",
	GroupCameraAngles:    "拍摄角度 (Camera Angle)",
	GroupCameraMovements: "运镜方式 (Camera Movement)",
}

// PromptSection 生成注入特征分析提示词的术语说明。
func (c *Catalogue) PromptSection() string {
	var b strings.Builder
	b.WriteString("请使用以下标准电影术语：\n")
	for _, g := range Groups() {
		fmt.Fprintf(&b, "\n**%s**：\n", groupTitles[g])
		for _, t := range c.Terms(g) {
			fmt.Fprintf(&b, "- %s (%s): %s\n", t.Name, t.NameEn, t.Description)
		}
	}
	return b.String()
}
