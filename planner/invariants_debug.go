//go:build plannerdebug

package planner

const failFast = true
