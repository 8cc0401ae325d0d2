//go:build !lrulist_debug

package lrulist

const debugging = false

func assert(bool, string) {}
