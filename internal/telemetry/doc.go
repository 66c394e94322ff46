// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 Lian 提供集中式的 TracerProvider 和 MeterProvider 配置，
// 并以异步 gauge 上报各逻辑库的连接池状态。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
