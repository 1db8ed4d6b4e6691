package hn

import (
	"fmt"
	"strings"
)

// Category is a ranked feed published by the remote API.
type Category string

// Known feed categories.
const (
	CategoryTop  Category = "top"
	CategoryNew  Category = "new"
	CategoryBest Category = "best"
	CategoryAsk  Category = "ask"
	CategoryShow Category = "show"
	CategoryJob  Category = "job"
)

var categoryPaths = map[Category]string{
	CategoryTop:  "/topstories.json",
	CategoryNew:  "/newstories.json",
	CategoryBest: "/beststories.json",
	CategoryAsk:  "/askstories.json",
	CategoryShow: "/showstories.json",
	CategoryJob:  "/jobstories.json",
}

// AllCategories lists every category in the default round-robin order.
func AllCategories() []Category {
	return []Category{CategoryTop, CategoryNew, CategoryBest, CategoryAsk, CategoryShow, CategoryJob}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := categoryPaths[c]; !ok {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

func (c Category) path() (string, error) {
	p, ok := categoryPaths[c]
	if !ok {
		return "", fmt.Errorf("unknown category %q", string(c))
	}
	return p, nil
}
