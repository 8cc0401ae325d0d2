//go:build lrulist_debug

package lrulist

const debugging = true

func assert(cond bool, message string) {
	if !cond {
		panic(message)
	}
}
