// Package app 将配置装配为可运行的编排组件，供 jarvisd 与 jarvisctl 共用。
package app
