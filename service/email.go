package service

import (
	"fmt"
	"strings"

	"finpilot/config"

	"gopkg.in/gomail.v2"
)

// EmailService 邮件服务（同步失败通知）
type EmailService struct {
	cfg *config.EmailConfig
}

// NewEmailService 创建邮件服务
func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// SendSyncFailureEmail 同步批次出现失败时通知用户
func (s *EmailService) SendSyncFailureEmail(toEmail, username string, failures []string) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("邮件服务未启用")
	}
	if toEmail == "" {
		return fmt.Errorf("用户未设置邮箱")
	}

	subject := "【Finpilot】账户同步出现失败"
	body := s.generateSyncFailureBody(username, failures)

	return s.sendEmail(toEmail, subject, body)
}

// generateSyncFailureBody 生成通知邮件内容
func (s *EmailService) generateSyncFailureBody(username string, failures []string) string {
	items := make([]string, 0, len(failures))
	for _, f := range failures {
		items = append(items, "<li>"+f+"</li>")
	}
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h2>账户同步出现失败</h2>
    <p>%s，你好：</p>
    <p>最近一次自动同步中，以下机构连接同步失败，稍后会自动重试同一窗口：</p>
    <ul>%s</ul>
    <p style="color:#888;font-size:12px;">此邮件由系统自动发送，请勿回复。</p>
</body>
</html>`, username, strings.Join(items, "\n"))
}

// sendEmail 发送邮件
func (s *EmailService) sendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}
