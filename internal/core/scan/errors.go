package scan

import "errors"

var (
	// ErrInvalidRequest はリクエストの形式が不正な場合
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmptyUniverse はスキャン対象の銘柄が1件も解決できなかった場合
	ErrEmptyUniverse = errors.New("no instruments to scan")
	// ErrTaskNotFound は指定IDのタスクが存在しない場合
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskExists はストアに同じIDのタスクが既にある場合
	ErrTaskExists = errors.New("task already exists")
	// ErrNotCancellable は実行中でないタスクをキャンセルしようとした場合
	ErrNotCancellable = errors.New("task is not cancellable")
)
