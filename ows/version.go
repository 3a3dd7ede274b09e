package ows

import "strings"

// Version WFS 协议版本
type Version string

const (
	Version100 Version = "1.0.0"
	Version110 Version = "1.1.0"
	Version200 Version = "2.0.0"
)

func (v Version) String() string {
	return string(v)
}

// SupportedVersions 按从低到高排列
var SupportedVersions = []Version{Version100, Version110, Version200}

// ParseVersion 解析版本号，未知版本返回 InvalidParameterValue
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	for _, v := range SupportedVersions {
		if string(v) == s {
			return v, nil
		}
	}
	if s == "" {
		return "", New("version is missing", MissingParameterValue, "version")
	}
	return "", Newf(InvalidParameterValue, "version '%s' is not supported", s)
}

// Negotiate 在服务端提供的版本中选择一个，未指定时取最高版本
func Negotiate(requested string, offered []Version) (Version, error) {
	if len(offered) == 0 {
		return "", New("no versions offered", NoApplicableCode)
	}
	if strings.TrimSpace(requested) == "" {
		return offered[len(offered)-1], nil
	}
	v, err := ParseVersion(requested)
	if err != nil {
		return "", err
	}
	for _, o := range offered {
		if o == v {
			return v, nil
		}
	}
	return "", New("version '"+requested+"' is not offered by this service", VersionNegotiationFailed, "version")
}
