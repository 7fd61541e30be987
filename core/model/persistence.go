package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

// SaveModel はモデルをgob形式でファイルに保存する。
// 一時ファイルに書き込んでからリネームするため、途中で失敗しても既存ファイルは壊れない。
//
// パラメータ:
//   - model: 保存する値（エクスポートされたフィールドを持つ構造体）
//   - filename: 保存先のファイルパス
//
// 使用例:
//
//	err := model.SaveModel(bundle, "out/logistic.gob")
func SaveModel(model interface{}, filename string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(filename), ".model-*")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", filename)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = SaveModelToWriter(model, tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err = os.Rename(tmp.Name(), filename); err != nil {
		return errors.Wrapf(err, "rename to %s", filename)
	}
	return nil
}

// LoadModel はファイルからgob形式のモデルを読み込む
//
// パラメータ:
//   - model: 読み込み先のポインタ
//   - filename: 読み込み元のファイルパス
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "open %s", filename)
	}
	defer file.Close()
	return LoadModelFromReader(model, file)
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(model interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(model); err != nil {
		return errors.Wrap(err, "encode model")
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
func LoadModelFromReader(model interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(model); err != nil {
		return errors.Wrap(err, "decode model")
	}
	return nil
}
