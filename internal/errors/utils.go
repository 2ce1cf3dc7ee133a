package errors

import "errors"

// Wrap wraps an error with additional context, creating a StitchError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *StitchError {
	if err == nil {
		return nil
	}

	// Keep URL and component of an inner StitchError so the outer message still
	// names the failing fragment.
	var se *StitchError
	if errors.As(err, &se) {
		return &StitchError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       se,
			Context:     se.Context,
			Component:   se.Component,
			URL:         se.URL,
			Recoverable: se.Recoverable,
		}
	}

	return &StitchError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeParams,
	}
}

// WrapResolution wraps an error as a resolution error for the given path.
func WrapResolution(err error, path string) *StitchError {
	se := Wrap(err, ErrorTypeResolution, ErrCodeResolve, "cannot resolve "+path)
	if se != nil {
		se.Recoverable = false
	}
	return se
}

// WrapFetch wraps a transport error for the given URL.
func WrapFetch(err error, url string) *StitchError {
	se := Wrap(err, ErrorTypeFetch, ErrCodeFetch, "Failed to load")
	if se != nil {
		se.URL = url
		se.Recoverable = false
	}
	return se
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *StitchError {
	se := Wrap(err, ErrorTypeIO, code, message)
	if se != nil {
		se.Recoverable = false
	}
	return se
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *StitchError {
	se := Wrap(err, ErrorTypeConfig, code, message)
	if se != nil {
		se.Recoverable = false
	}
	return se
}

// FormatError formats an error for user display
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var se *StitchError
	if errors.As(err, &se) {
		return se.Error()
	}

	return err.Error()
}

// GetErrorContext extracts context information from a StitchError
func GetErrorContext(err error) map[string]interface{} {
	var se *StitchError
	if errors.As(err, &se) {
		context := make(map[string]interface{})
		for k, v := range se.Context {
			context[k] = v
		}
		if se.Component != "" {
			context["component"] = se.Component
		}
		if se.URL != "" {
			context["url"] = se.URL
		}
		context["type"] = string(se.Type)
		context["code"] = se.Code
		context["recoverable"] = se.Recoverable
		return context
	}

	return map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}
}
