package errors

// ReturnCode is the process exit status reported to the shell.
type ReturnCode int

// Exit codes. These values are a stable contract for cron jobs and wrappers.
const (
	Success            ReturnCode = 0
	GenericError       ReturnCode = 1
	ConfigFileNotFound ReturnCode = 2
	ConfigFileEmpty    ReturnCode = 3
	ConfigFileInvalid  ReturnCode = 4
	InvalidJSONSchema  ReturnCode = 5
)

var codeToReturn = map[string]ReturnCode{
	ErrConfigNotFound: ConfigFileNotFound,
	ErrConfigEmpty:    ConfigFileEmpty,
	ErrConfigInvalid:  ConfigFileInvalid,
	ErrSchema:         InvalidJSONSchema,
}

// ExitCode maps an error to its return code. nil is Success and anything
// without a dedicated code is GenericError.
func ExitCode(err error) ReturnCode {
	if err == nil {
		return Success
	}
	var rErr *Error
	if As(err, &rErr) {
		if rc, ok := codeToReturn[rErr.Code]; ok {
			return rc
		}
	}
	return GenericError
}
