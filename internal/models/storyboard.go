// internal/models/storyboard.go
package models

import "encoding/base64"

// ImageData 一张图片的原始字节
type ImageData struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Base64 返回不带前缀的 base64 编码
func (d ImageData) Base64() string {
	return base64.StdEncoding.EncodeToString(d.Data)
}

// DataURL 返回 data:mime;base64,... 形式
func (d ImageData) DataURL() string {
	return "data:" + d.MimeType + ";base64," + d.Base64()
}

// ImageFromProduct 把上传的 base64 参考图解码成字节
func ImageFromProduct(p ProductImage) (ImageData, error) {
	raw, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return ImageData{}, err
	}
	mime := p.Type
	if mime == "" {
		mime = "image/png"
	}
	return ImageData{MimeType: mime, Data: raw}, nil
}

// FrameStatus 分镜单帧状态。缺省（map 中无键）表示尚未开始。
type FrameStatus string

const (
	FrameLoading FrameStatus = "loading"
	FrameDone    FrameStatus = "done"
	FrameError   FrameStatus = "error"
)

type StoryboardFrame struct {
	Status FrameStatus `json:"status"`
	Image  *ImageData  `json:"image,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Storyboard 画面 ID → 帧
type Storyboard map[string]StoryboardFrame

// Clone 拷贝 map，图片字节共享（只读）
func (sb Storyboard) Clone() Storyboard {
	if sb == nil {
		return nil
	}
	out := make(Storyboard, len(sb))
	for k, v := range sb {
		out[k] = v
	}
	return out
}

// Done 返回已完成帧的图片
func (sb Storyboard) Done(id string) (*ImageData, bool) {
	f, ok := sb[id]
	if !ok || f.Status != FrameDone || f.Image == nil {
		return nil, false
	}
	return f.Image, true
}

// CanStart 只有缺省或 error 状态可以进入 loading
func (sb Storyboard) CanStart(id string) bool {
	f, ok := sb[id]
	return !ok || f.Status == FrameError
}
