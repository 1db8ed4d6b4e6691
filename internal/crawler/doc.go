// Package crawler resolves root item ids into fully populated item trees.
package crawler
