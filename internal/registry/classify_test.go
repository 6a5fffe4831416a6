package registry

import (
	"errors"
	"net/http"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	ok := &http.Response{StatusCode: http.StatusOK}
	if err := classifyStatus(ok, "docker.io", "library/nginx", "1.25"); err != nil {
		t.Errorf("200 should classify as nil, got %v", err)
	}

	notFound := &http.Response{StatusCode: http.StatusNotFound}
	err := classifyStatus(notFound, "docker.io", "library/nginx", "1.25")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("404 should classify as NotFoundError, got %T: %v", err, err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should unwrap to ErrNotFound")
	}

	unauthorized := &http.Response{StatusCode: http.StatusUnauthorized}
	err = classifyStatus(unauthorized, "ghcr.io", "owner/repo", "")
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("401 should classify as AuthError, got %T: %v", err, err)
	}
	if !errors.Is(err, ErrAuth) {
		t.Error("AuthError should unwrap to ErrAuth")
	}

	forbidden := &http.Response{StatusCode: http.StatusForbidden}
	if err := classifyStatus(forbidden, "ghcr.io", "owner/repo", ""); !errors.As(err, &ae) {
		t.Errorf("403 should also classify as AuthError, got %T", err)
	}

	serverErr := &http.Response{StatusCode: http.StatusBadGateway}
	err = classifyStatus(serverErr, "docker.io", "library/nginx", "")
	if errors.As(err, &nf) || errors.As(err, &ae) {
		t.Errorf("502 should not classify as NotFoundError or AuthError, got %T", err)
	}
	if err == nil {
		t.Error("502 should still return a non-nil error")
	}
}
