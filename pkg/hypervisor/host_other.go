//go:build !darwin && !linux

package hypervisor

func detect(*Host) {}
