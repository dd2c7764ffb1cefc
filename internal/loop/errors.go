package loop

import "github.com/agentvault/runtime/internal/rterr"

func codeOf(err error) rterr.Code {
	if err == nil {
		return ""
	}
	code, _ := rterr.CodeOf(err)
	return code
}
