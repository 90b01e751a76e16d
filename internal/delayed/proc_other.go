//go:build !unix

package delayed

import "syscall"

func sysProcAttr() (*syscall.SysProcAttr, error) {
	return nil, ErrUnsupported
}

func commandLine(int) (string, error) {
	return "", ErrUnsupported
}

func terminateGroup(int) error {
	return ErrUnsupported
}
