//go:build !linux

package pkg

func renameNoReplaceSys(srcPath, destPath string) error {
	return errNoReplaceUnsupported
}
